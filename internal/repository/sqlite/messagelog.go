package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/stntools/relance/pkg/models"
)

func (r *SQLiteRepo) LogMessage(ctx context.Context, e *models.MessageLogEntry) error {
	if e == nil {
		return fmt.Errorf("message log entry is nil")
	}
	if e.SentAt.IsZero() {
		e.SentAt = now()
	}
	_, err := r.conn.Exec(ctx,
		`INSERT INTO message_log (form_id, person_id, person_name, success, message_id, latency_ms, error, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(e.FormID), nullIfEmpty(e.PersonID), e.PersonName, e.Success,
		e.MessageID, e.Latency.Milliseconds(), e.Error, fmtTime(e.SentAt))
	return err
}

func (r *SQLiteRepo) MessengerStats(ctx context.Context, period time.Duration) (models.MessengerStats, error) {
	s := models.MessengerStats{PeriodHours: int(period.Hours())}
	cutoff := fmtTime(now().Add(-period))

	var avgLatency float64
	row := r.conn.QueryRow(ctx,
		`SELECT COUNT(1), COALESCE(SUM(success), 0), COALESCE(AVG(latency_ms), 0)
		 FROM message_log WHERE sent_at >= ?`, cutoff)
	if err := row.Scan(&s.TotalMessages, &s.Successful, &avgLatency); err != nil {
		return models.MessengerStats{}, err
	}
	s.Failed = s.TotalMessages - s.Successful
	s.AvgLatencyMsec = avgLatency
	if s.TotalMessages > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalMessages) * 100
	}
	return s, nil
}
