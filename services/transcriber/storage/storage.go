package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/xilidan/transcriber/services/transcriber/entity"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Storage interface {
	CreateTranscription(ctx context.Context, t *entity.Transcription) error
	CompleteTranscription(ctx context.Context, id, text, vttContent string, rawResult []byte) error
	FailTranscription(ctx context.Context, id, message string) error
	UpdateDerived(ctx context.Context, id string, text, vttContent *string) error
	GetTranscription(ctx context.Context, id string) (*entity.Transcription, error)
	GetTranscriptionByJobID(ctx context.Context, jobID string) (*entity.Transcription, error)
	ListTranscriptions(ctx context.Context) ([]*entity.Transcription, error)

	CreateTranslation(ctx context.Context, t *entity.Translation) error
	ListTranslations(ctx context.Context, transcriptionID string) ([]*entity.Translation, error)
	GetTranslation(ctx context.Context, id string) (*entity.Translation, error)

	Ping(ctx context.Context) error
	Close() error
}

type storage struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

// Open connects to the configured database and creates the schema if it does
// not exist yet. driver is "sqlite" (default) or "postgres".
func Open(ctx context.Context, driver, dsn string) (Storage, error) {
	var (
		sqlDriver string
		dsnFull   = dsn
		d         string
	)

	switch driver {
	case "", DriverSQLite:
		sqlDriver, d = "sqlite", dialect.SQLite
		dsnFull = sqliteDSN(dsn)
	case DriverPostgres:
		sqlDriver, d = "postgres", dialect.Postgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsnFull)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d == dialect.SQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := newStorage(db, d)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func newStorage(db *sql.DB, d string) *storage {
	return &storage{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *storage) Close() error {
	return s.db.Close()
}

func (s *storage) migrate(ctx context.Context) error {
	timestamp := "TIMESTAMP"
	if s.dialect == dialect.Postgres {
		timestamp = "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcriptions (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			audio_url TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			transcript_text TEXT,
			vtt_content TEXT,
			raw_result TEXT,
			created_at ` + timestamp + ` NOT NULL,
			updated_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcriptions_job_id ON transcriptions (job_id)`,
		`CREATE TABLE IF NOT EXISTS translations (
			id TEXT PRIMARY KEY,
			transcription_id TEXT NOT NULL REFERENCES transcriptions (id),
			target_language TEXT NOT NULL,
			translated_text TEXT NOT NULL,
			translated_vtt TEXT,
			partial BOOLEAN NOT NULL DEFAULT FALSE,
			failed_batches INTEGER NOT NULL DEFAULT 0,
			created_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_translations_transcription_id ON translations (transcription_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return nil
}

// sqliteDSN turns a plain file path into a DSN with foreign keys enforced and
// a busy timeout set.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "transcriptions.db"
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func rowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transcription %s: %w", id, entity.ErrNotFound)
	}
	return nil
}
