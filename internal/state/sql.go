package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/On-Jun9/MetaPipe/internal/metadata"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

const dbTimeout = 2 * time.Second

// Dialect selects placeholder style and upsert syntax.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

var schema = map[Dialect]string{
	DialectMySQL: `CREATE TABLE IF NOT EXISTS extract_metadata (
  media_id VARCHAR(64) NOT NULL PRIMARY KEY,
  extracted DATETIME(6) NOT NULL,
  extractors JSON NOT NULL,
  metadata LONGTEXT NOT NULL
)`,
	DialectPostgres: `CREATE TABLE IF NOT EXISTS extract_metadata (
  media_id VARCHAR(64) PRIMARY KEY,
  extracted TIMESTAMPTZ NOT NULL,
  extractors JSONB NOT NULL,
  metadata TEXT NOT NULL
)`,
}

type queries struct {
	upsert string
	find   string
	delete string
}

var dialectQueries = map[Dialect]queries{
	DialectMySQL: {
		upsert: "INSERT INTO extract_metadata (media_id, extracted, extractors, metadata) VALUES (?, ?, ?, ?) " +
			"ON DUPLICATE KEY UPDATE extracted = VALUES(extracted), extractors = VALUES(extractors), metadata = VALUES(metadata)",
		find:   "SELECT extracted, extractors, metadata FROM extract_metadata WHERE media_id = ?",
		delete: "DELETE FROM extract_metadata WHERE media_id = ?",
	},
	DialectPostgres: {
		upsert: "INSERT INTO extract_metadata (media_id, extracted, extractors, metadata) VALUES ($1, $2, $3, $4) " +
			"ON CONFLICT (media_id) DO UPDATE SET extracted = EXCLUDED.extracted, extractors = EXCLUDED.extractors, metadata = EXCLUDED.metadata",
		find:   "SELECT extracted, extractors, metadata FROM extract_metadata WHERE media_id = $1",
		delete: "DELETE FROM extract_metadata WHERE media_id = $1",
	},
}

// SQLStore keeps records in the extract_metadata table. Every write is a
// single upsert statement, so concurrent writers of one media never see a
// duplicate key.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	q       queries
	backoff func() backoff.BackOff
}

// NewSQLStore wraps db. The caller owns the *sql.DB lifetime.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	q, ok := dialectQueries[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		q:       q,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Second
			return backoff.WithMaxRetries(b, 4)
		},
	}, nil
}

// Open connects to the database named by driver and dsn.
func Open(driver, dsn string) (*SQLStore, *sql.DB, error) {
	dsn, err := normalizeDSN(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	store, err := NewSQLStore(db, Dialect(driver))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

// normalizeDSN turns on parseTime for MySQL so DATETIME columns scan into
// time.Time.
func normalizeDSN(driver, dsn string) (string, error) {
	if Dialect(driver) != DialectMySQL {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// Migrate creates the table when it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema[s.dialect]); err != nil {
		return fmt.Errorf("repo migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) Upsert(ctx context.Context, mediaID string, payload types.Payload, extractors map[string]string, extractedAt time.Time) (*types.MetadataRecord, error) {
	metaJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("repo upsert marshal: %w", err)
	}
	extJSON, err := json.Marshal(copyStrings(extractors))
	if err != nil {
		return nil, fmt.Errorf("repo upsert marshal: %w", err)
	}

	err = s.retry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, dbTimeout)
		defer cancel()
		_, err := s.db.ExecContext(ctx, s.q.upsert, mediaID, extractedAt.UTC(), string(extJSON), string(metaJSON))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("repo upsert: %w", err)
	}
	return &types.MetadataRecord{
		MediaID:     mediaID,
		ExtractedAt: extractedAt,
		Extractors:  copyStrings(extractors),
		Payload:     payload,
	}, nil
}

func (s *SQLStore) Find(ctx context.Context, mediaID string) (*types.MetadataRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		extracted         time.Time
		extJSON, metaJSON []byte
	)
	err := s.db.QueryRowContext(ctx, s.q.find, mediaID).Scan(&extracted, &extJSON, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repo find: %w", err)
	}

	rec := &types.MetadataRecord{MediaID: mediaID, ExtractedAt: extracted}
	if len(extJSON) > 0 {
		if err := json.Unmarshal(extJSON, &rec.Extractors); err != nil {
			return nil, fmt.Errorf("repo find extractors: %w", err)
		}
	}
	if err := json.Unmarshal(metaJSON, &rec.Payload); err != nil {
		return nil, fmt.Errorf("repo find metadata: %w", err)
	}
	if rec.Payload == nil {
		rec.Payload = types.Payload{}
	}
	metadata.NormalizeStoredPayload(rec.Payload)
	return rec, nil
}

func (s *SQLStore) Delete(ctx context.Context, mediaID string) error {
	err := s.retry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, dbTimeout)
		defer cancel()
		_, err := s.db.ExecContext(ctx, s.q.delete, mediaID)
		return err
	})
	if err != nil {
		return fmt.Errorf("repo delete: %w", err)
	}
	return nil
}

// Close is a no-op; the *sql.DB belongs to the caller.
func (s *SQLStore) Close() error { return nil }

// retry reruns op while it fails with a deadlock or lock-wait error.
func (s *SQLStore) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(s.backoff(), ctx))
}

func isTransient(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
