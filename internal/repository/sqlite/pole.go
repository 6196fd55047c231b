package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stntools/relance/pkg/models"
)

func (r *SQLiteRepo) CreatePole(ctx context.Context, p *models.Pole) error {
	if p == nil {
		return fmt.Errorf("pole is nil")
	}

	var count int
	row := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM poles WHERE LOWER(name) = LOWER(?)`, p.Name)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return models.ErrDuplicatePoleName
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
		`INSERT INTO poles (id, name, description, color, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Color, p.IsActive, fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
	return err
}

func scanPole(row interface{ Scan(...any) error }) (*models.Pole, error) {
	var p models.Pole
	var desc, color sql.NullString
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &desc, &color, &p.IsActive, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.Description = desc.String
	p.Color = color.String
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

const poleCols = `id, name, description, color, is_active, created_at, updated_at`

func (r *SQLiteRepo) GetPoleByID(ctx context.Context, id string) (*models.Pole, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+poleCols+` FROM poles WHERE id = ?`, id)
	return scanPole(row)
}

func (r *SQLiteRepo) ListPoles(ctx context.Context, activeOnly bool) ([]models.Pole, error) {
	q := `SELECT ` + poleCols + ` FROM poles ORDER BY name`
	if activeOnly {
		q = `SELECT ` + poleCols + ` FROM poles WHERE is_active = 1 ORDER BY name`
	}
	rows, err := r.conn.QueryRows(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Pole
	for rows.Next() {
		p, err := scanPole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) UpdatePole(ctx context.Context, p *models.Pole) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("pole is nil")
	}
	res, err := r.conn.Exec(ctx,
		`UPDATE poles SET name = ?, description = ?, color = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, p.Color, p.IsActive, fmtTime(now()), p.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLiteRepo) DeletePole(ctx context.Context, id string, moveFormsTo string) (bool, error) {
	if moveFormsTo != "" {
		if _, err := r.conn.Exec(ctx,
			`UPDATE forms SET pole_id = ?, updated_at = ? WHERE pole_id = ?`,
			moveFormsTo, fmtTime(now()), id); err != nil {
			return false, err
		}
	}
	res, err := r.conn.Exec(ctx, `DELETE FROM poles WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
