package sqlite

import (
	"database/sql"
	"time"

	"log/slog"

	"github.com/stntools/relance/internal/db"
	"github.com/stntools/relance/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.PersonRepo = (*SQLiteRepo)(nil)
var _ repository.PoleRepo = (*SQLiteRepo)(nil)
var _ repository.FormRepo = (*SQLiteRepo)(nil)
var _ repository.ResponseRepo = (*SQLiteRepo)(nil)
var _ repository.StatsRepo = (*SQLiteRepo)(nil)
var _ repository.MessageLogRepo = (*SQLiteRepo)(nil)
var _ repository.UserRepo = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRepo{conn: conn, logger: logger}
}

// Timestamps are stored as RFC 3339 strings in UTC with a fixed-width
// fraction, so SQL string comparisons order them chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func now() time.Time {
	return time.Now().UTC()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
