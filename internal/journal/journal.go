package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - documents and patches tables
const currentSchemaVersion = 1

// Clock stamps journal rows. Next must return strictly increasing values.
type Clock interface {
	Next() int64
	Now() time.Time
}

// seqClock resumes from the last sequence number found on disk.
type seqClock struct {
	seq atomic.Int64
}

func (c *seqClock) Next() int64    { return c.seq.Add(1) }
func (c *seqClock) Now() time.Time { return time.Now() }

// Journal is an append-only log of outbound patches, one SQLite database
// per journal.
type Journal struct {
	db     *sql.DB
	clock  Clock
	logger *slog.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

type config struct {
	clock  Clock
	logger *slog.Logger
}

// Option configures Open.
type Option func(*config)

// WithClock replaces the sequence clock. The caller must make sure it
// starts past LastSeq of an existing journal.
func WithClock(c Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

// Open creates or opens the journal database at path and applies the
// schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Journal, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	j := &Journal{
		db:     db,
		clock:  cfg.clock,
		logger: cfg.logger.With("journal", path),
		enc:    enc,
		dec:    dec,
	}
	if j.clock == nil {
		last, err := j.lastSeq(context.Background(), "")
		if err != nil {
			j.Close()
			return nil, err
		}
		c := &seqClock{}
		c.seq.Store(last)
		j.clock = c
	}
	return j, nil
}

// Close releases the database and the codecs. Closing twice is a no-op.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	j.enc.Close()
	j.dec.Close()
	err := j.db.Close()
	j.db = nil
	return err
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (j *Journal) compress(data []byte) []byte {
	return j.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (j *Journal) decompress(data []byte) ([]byte, error) {
	out, err := j.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}

// pragma reads a single pragma value. Used by tests.
func (j *Journal) pragma(name string) (string, error) {
	var value string
	if err := j.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("query %s: %w", name, err)
	}
	return value, nil
}
