package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stntools/relance/pkg/models"
)

const formCols = `id, name, google_form_id, pole_id, expected_people_ids, description, date_envoi, is_active, created_at, updated_at`

func (r *SQLiteRepo) CreateForm(ctx context.Context, f *models.Form, expectedPeopleIDs []string) error {
	if f == nil {
		return fmt.Errorf("form is nil")
	}

	var count int
	row := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM forms WHERE google_form_id = ?`, f.GoogleFormID)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return models.ErrDuplicateGoogleID
	}

	if f.ID == "" {
		f.ID = models.NewID()
	}
	ts := now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = ts
	}
	f.UpdatedAt = ts

	expected := dedup(expectedPeopleIDs)
	idsJSON, err := json.Marshal(expected)
	if err != nil {
		return err
	}

	// Form row and its materialized response rows commit together so a
	// failed creation leaves the store unchanged.
	tx, err := r.conn.GetConn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO forms (id, name, google_form_id, pole_id, expected_people_ids, description, date_envoi, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.GoogleFormID, nullIfEmpty(f.PoleID), string(idsJSON), f.Description,
		fmtTimePtr(f.DateEnvoi), f.IsActive, fmtTime(f.CreatedAt), fmtTime(f.UpdatedAt)); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, personID := range expected {
		if err := insertResponseRow(ctx, tx, f.ID, personID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func insertResponseRow(ctx context.Context, tx *sql.Tx, formID, personID string) error {
	ts := fmtTime(now())
	_, err := tx.ExecContext(ctx,
		`INSERT INTO responses (id, form_id, person_id, has_responded, reminder_count, created_at, updated_at)
		 VALUES (?, ?, ?, 0, 0, ?, ?)`,
		models.NewID(), formID, personID, ts, ts)
	return err
}

func scanForm(row interface{ Scan(...any) error }) (*models.Form, []string, error) {
	var f models.Form
	var poleID, idsJSON, desc, dateEnvoi sql.NullString
	var created, updated string
	if err := row.Scan(&f.ID, &f.Name, &f.GoogleFormID, &poleID, &idsJSON, &desc, &dateEnvoi, &f.IsActive, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	f.PoleID = poleID.String
	f.Description = desc.String
	f.DateEnvoi = parseNullTime(dateEnvoi)
	f.CreatedAt = parseTime(created)
	f.UpdatedAt = parseTime(updated)

	var expected []string
	if idsJSON.Valid && idsJSON.String != "" {
		if err := json.Unmarshal([]byte(idsJSON.String), &expected); err != nil {
			return nil, nil, fmt.Errorf("decode expected people of form %s: %w", f.ID, err)
		}
	}
	return &f, expected, nil
}

func (r *SQLiteRepo) GetFormByID(ctx context.Context, id string) (*models.Form, []string, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+formCols+` FROM forms WHERE id = ?`, id)
	return scanForm(row)
}

func (r *SQLiteRepo) GetFormByGoogleID(ctx context.Context, googleFormID string) (*models.Form, []string, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+formCols+` FROM forms WHERE google_form_id = ?`, googleFormID)
	return scanForm(row)
}

func (r *SQLiteRepo) listForms(ctx context.Context, q string, args ...any) ([]models.Form, error) {
	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Form
	for rows.Next() {
		f, _, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) ListForms(ctx context.Context, activeOnly bool) ([]models.Form, error) {
	q := `SELECT ` + formCols + ` FROM forms ORDER BY created_at DESC`
	if activeOnly {
		q = `SELECT ` + formCols + ` FROM forms WHERE is_active = 1 ORDER BY created_at DESC`
	}
	return r.listForms(ctx, q)
}

func (r *SQLiteRepo) ListFormsByPole(ctx context.Context, poleID string) ([]models.Form, error) {
	return r.listForms(ctx, `SELECT `+formCols+` FROM forms WHERE pole_id = ? ORDER BY created_at DESC`, poleID)
}

func (r *SQLiteRepo) ExpectedPeopleIDs(ctx context.Context, formID string) ([]string, error) {
	_, expected, err := r.GetFormByID(ctx, formID)
	return expected, err
}

func (r *SQLiteRepo) UpdateForm(ctx context.Context, f *models.Form) (bool, error) {
	if f == nil {
		return false, fmt.Errorf("form is nil")
	}
	res, err := r.conn.Exec(ctx,
		`UPDATE forms SET name = ?, pole_id = ?, description = ?, date_envoi = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		f.Name, nullIfEmpty(f.PoleID), f.Description, fmtTimePtr(f.DateEnvoi), f.IsActive, fmtTime(now()), f.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateExpectedPeople reconciles the expected set against the stored one.
// Response rows survive for people present in both sets, so their response
// and reminder history is preserved; removed people lose their rows and
// re-added people start fresh.
func (r *SQLiteRepo) UpdateExpectedPeople(ctx context.Context, formID string, peopleIDs []string) error {
	form, current, err := r.GetFormByID(ctx, formID)
	if err != nil {
		return err
	}
	if form == nil {
		return fmt.Errorf("form %s not found", formID)
	}

	next := dedup(peopleIDs)
	nextSet := make(map[string]bool, len(next))
	for _, id := range next {
		nextSet[id] = true
	}
	currentSet := make(map[string]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}

	idsJSON, err := json.Marshal(next)
	if err != nil {
		return err
	}

	tx, err := r.conn.GetConn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE forms SET expected_people_ids = ?, updated_at = ? WHERE id = ?`,
		string(idsJSON), fmtTime(now()), formID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, id := range current {
		if !nextSet[id] {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM responses WHERE form_id = ? AND person_id = ?`, formID, id); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	for _, id := range next {
		if !currentSet[id] {
			if err := insertResponseRow(ctx, tx, formID, id); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepo) AddExpectedPerson(ctx context.Context, formID, personID string) error {
	form, current, err := r.GetFormByID(ctx, formID)
	if err != nil {
		return err
	}
	if form == nil {
		return fmt.Errorf("form %s not found", formID)
	}
	for _, id := range current {
		if id == personID {
			return nil
		}
	}
	return r.UpdateExpectedPeople(ctx, formID, append(current, personID))
}

func (r *SQLiteRepo) DeleteForm(ctx context.Context, id string) (bool, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM forms WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
