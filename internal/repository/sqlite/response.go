package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/stntools/relance/pkg/models"
)

const responseCols = `id, form_id, person_id, has_responded, response_date, last_reminder, reminder_count, notes, created_at, updated_at`

func scanResponse(row interface{ Scan(...any) error }) (*models.Response, error) {
	var resp models.Response
	var respDate, lastReminder, notes sql.NullString
	var created, updated string
	if err := row.Scan(&resp.ID, &resp.FormID, &resp.PersonID, &resp.HasResponded,
		&respDate, &lastReminder, &resp.ReminderCount, &notes, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	resp.ResponseDate = parseNullTime(respDate)
	resp.LastReminder = parseNullTime(lastReminder)
	resp.Notes = notes.String
	resp.CreatedAt = parseTime(created)
	resp.UpdatedAt = parseTime(updated)
	return &resp, nil
}

func (r *SQLiteRepo) ListResponsesForForm(ctx context.Context, formID string) ([]models.Response, error) {
	rows, err := r.conn.QueryRows(ctx,
		`SELECT `+responseCols+` FROM responses WHERE form_id = ? ORDER BY created_at`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, rows.Err()
}

const nonResponderQuery = `
	SELECT p.id, p.name, p.email, p.psid, p.created_at, p.updated_at,
	       r.id, r.form_id, r.person_id, r.has_responded, r.response_date,
	       r.last_reminder, r.reminder_count, r.notes, r.created_at, r.updated_at
	FROM responses r
	JOIN people p ON p.id = r.person_id
	WHERE r.form_id = ? AND r.has_responded = 0`

func scanNonResponders(rows *sql.Rows) ([]models.NonResponder, error) {
	var out []models.NonResponder
	for rows.Next() {
		var nr models.NonResponder
		var email, psid sql.NullString
		var pCreated, pUpdated string
		var respDate, lastReminder, notes sql.NullString
		var rCreated, rUpdated string
		if err := rows.Scan(
			&nr.Person.ID, &nr.Person.Name, &email, &psid, &pCreated, &pUpdated,
			&nr.Response.ID, &nr.Response.FormID, &nr.Response.PersonID, &nr.Response.HasResponded,
			&respDate, &lastReminder, &nr.Response.ReminderCount, &notes, &rCreated, &rUpdated); err != nil {
			return nil, err
		}
		nr.Person.Email = email.String
		nr.Person.PSID = psid.String
		nr.Person.CreatedAt = parseTime(pCreated)
		nr.Person.UpdatedAt = parseTime(pUpdated)
		nr.Response.ResponseDate = parseNullTime(respDate)
		nr.Response.LastReminder = parseNullTime(lastReminder)
		nr.Response.Notes = notes.String
		nr.Response.CreatedAt = parseTime(rCreated)
		nr.Response.UpdatedAt = parseTime(rUpdated)
		out = append(out, nr)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) NonResponders(ctx context.Context, formID string) ([]models.NonResponder, error) {
	rows, err := r.conn.QueryRows(ctx, nonResponderQuery+` ORDER BY p.name`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNonResponders(rows)
}

// ReminderEligible keeps only reachable non-responders whose cooldown has
// elapsed. A person reminded exactly cooldown ago is eligible again.
func (r *SQLiteRepo) ReminderEligible(ctx context.Context, formID string, cooldown time.Duration) ([]models.NonResponder, error) {
	cutoff := fmtTime(now().Add(-cooldown))
	rows, err := r.conn.QueryRows(ctx,
		nonResponderQuery+`
		AND p.psid IS NOT NULL AND p.psid != ''
		AND (r.last_reminder IS NULL OR r.last_reminder <= ?)
		ORDER BY p.name`, formID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNonResponders(rows)
}

func (r *SQLiteRepo) RecordResponse(ctx context.Context, formID, personID string, responseDate time.Time) error {
	ts := fmtTime(now())
	res, err := r.conn.Exec(ctx,
		`UPDATE responses SET has_responded = 1, response_date = ?, updated_at = ?
		 WHERE form_id = ? AND person_id = ?`,
		fmtTime(responseDate), ts, formID, personID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// Respondent outside the expected set: the row is created already
	// responded so the late answer still counts.
	_, err = r.conn.Exec(ctx,
		`INSERT INTO responses (id, form_id, person_id, has_responded, response_date, reminder_count, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, 0, ?, ?)`,
		models.NewID(), formID, personID, fmtTime(responseDate), ts, ts)
	return err
}

func (r *SQLiteRepo) RecordReminderSent(ctx context.Context, formID, personID string) (bool, error) {
	ts := fmtTime(now())
	res, err := r.conn.Exec(ctx,
		`UPDATE responses SET last_reminder = ?, reminder_count = reminder_count + 1, updated_at = ?
		 WHERE form_id = ? AND person_id = ?`,
		ts, ts, formID, personID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLiteRepo) FormStats(ctx context.Context, formID string) (models.FormStats, error) {
	var s models.FormStats
	row := r.conn.QueryRow(ctx,
		`SELECT COUNT(1), COALESCE(SUM(has_responded), 0) FROM responses WHERE form_id = ?`, formID)
	if err := row.Scan(&s.Total, &s.Responded); err != nil {
		return models.FormStats{}, err
	}
	s.Pending = s.Total - s.Responded
	return s, nil
}
