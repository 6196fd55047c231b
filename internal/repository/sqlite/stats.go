package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/stntools/relance/pkg/models"
)

const lastSyncKey = "last_sync"

func (r *SQLiteRepo) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	row := r.conn.QueryRow(ctx, q, args...)
	err := row.Scan(&n)
	return n, err
}

func (r *SQLiteRepo) GlobalStats(ctx context.Context) (models.GlobalStats, error) {
	var s models.GlobalStats
	var err error

	if s.TotalPeople, err = r.count(ctx, `SELECT COUNT(1) FROM people`); err != nil {
		return s, err
	}
	if s.TotalForms, err = r.count(ctx, `SELECT COUNT(1) FROM forms WHERE is_active = 1`); err != nil {
		return s, err
	}
	if s.TotalResponses, err = r.count(ctx, `SELECT COUNT(1) FROM responses`); err != nil {
		return s, err
	}
	if s.PendingReminders, err = r.count(ctx, `SELECT COUNT(1) FROM responses WHERE has_responded = 0`); err != nil {
		return s, err
	}

	today := now()
	midnight := fmtTime(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC))
	var sent, ok int
	row := r.conn.QueryRow(ctx,
		`SELECT COUNT(1), COALESCE(SUM(success), 0) FROM message_log WHERE sent_at >= ?`, midnight)
	if err := row.Scan(&sent, &ok); err != nil {
		return s, err
	}
	s.SentToday = sent
	if sent > 0 {
		s.SuccessRate = float64(ok) / float64(sent) * 100
	}

	var lastSync sql.NullString
	row = r.conn.QueryRow(ctx, `SELECT value FROM app_metadata WHERE key = ?`, lastSyncKey)
	if err := row.Scan(&lastSync); err != nil && err != sql.ErrNoRows {
		return s, err
	}
	s.LastSync = parseNullTime(lastSync)
	return s, nil
}

func (r *SQLiteRepo) HealthCheck(ctx context.Context) (models.HealthReport, error) {
	var h models.HealthReport
	var err error

	if h.PeopleCount, err = r.count(ctx, `SELECT COUNT(1) FROM people`); err != nil {
		return h, err
	}
	if h.PolesCount, err = r.count(ctx, `SELECT COUNT(1) FROM poles`); err != nil {
		return h, err
	}
	if h.FormsCount, err = r.count(ctx, `SELECT COUNT(1) FROM forms`); err != nil {
		return h, err
	}
	if h.ResponsesCount, err = r.count(ctx, `SELECT COUNT(1) FROM responses`); err != nil {
		return h, err
	}
	if h.OrphanedResponses, err = r.count(ctx,
		`SELECT COUNT(1) FROM responses r
		 WHERE NOT EXISTS (SELECT 1 FROM forms f WHERE f.id = r.form_id)
		    OR NOT EXISTS (SELECT 1 FROM people p WHERE p.id = r.person_id)`); err != nil {
		return h, err
	}
	if h.FormsWithoutPole, err = r.count(ctx,
		`SELECT COUNT(1) FROM forms WHERE pole_id IS NULL OR pole_id = ''`); err != nil {
		return h, err
	}

	h.Status = models.StatusSuccess
	if h.OrphanedResponses > 0 {
		h.Status = models.StatusWarning
	}
	return h, nil
}

func (r *SQLiteRepo) SetLastSync(ctx context.Context, t time.Time) error {
	ts := fmtTime(now())
	_, err := r.conn.Exec(ctx,
		`INSERT INTO app_metadata (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		lastSyncKey, fmtTime(t), ts)
	return err
}
