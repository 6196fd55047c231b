package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stntools/relance/pkg/models"
)

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}

	existing, err := r.GetUserByEmail(ctx, u.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return models.ErrDuplicateUser
	}

	if u.ID == "" {
		u.ID = models.NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}
	_, err = r.conn.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, models.NormalizeEmail(u.Email), u.PasswordHash, fmtTime(u.CreatedAt))
	return err
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	var created string
	row := r.conn.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`,
		models.NormalizeEmail(email))
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}
