package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stntools/relance/pkg/models"
)

func (r *SQLiteRepo) CreatePerson(ctx context.Context, p *models.Person) error {
	if p == nil {
		return fmt.Errorf("person is nil")
	}
	if !p.IsValid() {
		return models.ErrInvalidPerson
	}

	// Duplicate checks are explicit so callers get a typed error rather
	// than a driver-specific constraint violation.
	if p.Email != "" {
		existing, err := r.GetPersonByEmail(ctx, p.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return models.ErrDuplicateEmail
		}
	}
	if p.PSID != "" {
		existing, err := r.GetPersonByPSID(ctx, p.PSID)
		if err != nil {
			return err
		}
		if existing != nil {
			return models.ErrDuplicatePSID
		}
	}

	if p.ID == "" {
		p.ID = models.NewID()
	}
	ts := now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = ts
	}
	p.UpdatedAt = ts

	_, err := r.conn.Exec(ctx,
		`INSERT INTO people (id, name, email, psid, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, p.PSID, fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
	return err
}

func scanPerson(row interface{ Scan(...any) error }) (*models.Person, error) {
	var p models.Person
	var email, psid sql.NullString
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &email, &psid, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.Email = email.String
	p.PSID = psid.String
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

const personCols = `id, name, email, psid, created_at, updated_at`

func (r *SQLiteRepo) GetPersonByID(ctx context.Context, id string) (*models.Person, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+personCols+` FROM people WHERE id = ?`, id)
	return scanPerson(row)
}

func (r *SQLiteRepo) GetPersonByEmail(ctx context.Context, email string) (*models.Person, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+personCols+` FROM people WHERE LOWER(email) = ?`,
		models.NormalizeEmail(email))
	return scanPerson(row)
}

func (r *SQLiteRepo) GetPersonByPSID(ctx context.Context, psid string) (*models.Person, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+personCols+` FROM people WHERE psid = ?`, psid)
	return scanPerson(row)
}

func (r *SQLiteRepo) ListPeople(ctx context.Context) ([]models.Person, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+personCols+` FROM people ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) UpdatePerson(ctx context.Context, p *models.Person) error {
	if p == nil {
		return fmt.Errorf("person is nil")
	}
	if !p.IsValid() {
		return models.ErrInvalidPerson
	}

	// same typed duplicate errors as CreatePerson, excluding the row itself
	if p.Email != "" {
		existing, err := r.GetPersonByEmail(ctx, p.Email)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != p.ID {
			return models.ErrDuplicateEmail
		}
	}
	if p.PSID != "" {
		existing, err := r.GetPersonByPSID(ctx, p.PSID)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != p.ID {
			return models.ErrDuplicatePSID
		}
	}

	p.UpdatedAt = now()
	_, err := r.conn.Exec(ctx,
		`UPDATE people SET name = ?, email = ?, psid = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Email, p.PSID, fmtTime(p.UpdatedAt), p.ID)
	return err
}

func (r *SQLiteRepo) DeletePerson(ctx context.Context, id string) (bool, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM people WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
