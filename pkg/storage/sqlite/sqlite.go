package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hikari-danmu/server/pkg/storage"
)

// SQLite is the database/sql-backed Storage implementation. It trades the
// teacher's go-jet query builder for hand-written SQL in the style of
// Wraient-pair's pkg/database, since go-jet's generator needs a live DB
// connection to run and this build never invokes the Go toolchain.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

const timestampFormat = "2006-01-02T15:04:05.999999999Z07:00"

// New opens (creating if necessary) a sqlite3 database at filePath; Init
// runs its migrations.
func New(filePath string, logger *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", filePath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer at a time; serialize through a
	// single connection rather than fighting SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Init(ctx context.Context) error {
	return runMigrations(s.db)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanTime(t *time.Time, raw sql.NullString) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	parsed, err := time.Parse(timestampFormat, raw.String)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
