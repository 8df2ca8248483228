package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/apievolve/pkg/observability"
	"github.com/platinummonkey/apievolve/pkg/storage"
)

var tracer = otel.Tracer("apievolve/storage/sqlstore")

// DocumentStore keeps document bodies outside the database
type DocumentStore interface {
	PutDocument(ctx context.Context, key string, document []byte) error
	GetDocument(ctx context.Context, key string) ([]byte, error)
	HealthCheck(ctx context.Context) error
}

// Store implements storage.Store on PostgreSQL or SQLite
type Store struct {
	conn      *ConnectionManager
	documents DocumentStore
}

// New creates a store on an open connection manager. documents may be nil,
// bodies are then kept in the revisions table.
func New(conn *ConnectionManager, documents DocumentStore) *Store {
	return &Store{conn: conn, documents: documents}
}

// Open connects to the configured database, creates the schema and, when
// an S3 bucket is configured, keeps documents in S3.
func Open(ctx context.Context, cfg storage.Config, logger *observability.Logger) (*Store, error) {
	dialect, err := ParseDialect(cfg.Type)
	if err != nil {
		return nil, err
	}

	conn, err := NewConnectionManager(ctx, ConnectionConfig{
		Dialect:     dialect,
		PrimaryURL:  cfg.DatabaseURL,
		ReplicaURLs: cfg.ReplicaURLs,
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		Timeout:     cfg.ConnectTimeout,
		MaxLifetime: cfg.ConnMaxLifetime,
		MaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	var documents DocumentStore
	if cfg.S3Bucket != "" {
		if documents, err = NewS3Documents(ctx, cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create s3 document store: %w", err)
		}
	}

	s := New(conn, documents)
	if err := s.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the primary database, for health checks
func (s *Store) DB() *sql.DB {
	return s.conn.Primary()
}

// Connections returns the connection manager of the store
func (s *Store) Connections() *ConnectionManager {
	return s.conn
}

// Migrate creates the revisions table
func (s *Store) Migrate(ctx context.Context) error {
	idType, timeType := "UUID", "TIMESTAMPTZ"
	if s.conn.Dialect() == DialectSQLite {
		idType, timeType = "TEXT", "TIMESTAMP"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS revisions (
			id %s PRIMARY KEY,
			history TEXT NOT NULL,
			revision INTEGER NOT NULL,
			document TEXT NOT NULL,
			document_key TEXT NOT NULL DEFAULT '',
			checksum TEXT NOT NULL,
			created_at %s NOT NULL,
			UNIQUE (history, revision)
		)`, idType, timeType)

	if _, err := s.conn.Primary().ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create revisions table: %w", err)
	}
	return nil
}

func documentKey(record *storage.Record) string {
	return fmt.Sprintf("documents/%s/%d/%s.yaml", record.History, record.Revision, record.Checksum)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SaveRevision implements storage.RevisionWriter
func (s *Store) SaveRevision(ctx context.Context, record *storage.Record) (err error) {
	ctx, span := startSpan(ctx, "sqlstore.SaveRevision",
		attribute.String("history", record.History),
		attribute.Int("revision", record.Revision),
	)
	defer func() { endSpan(span, err) }()

	body, key := record.Document, ""
	if s.documents != nil {
		key = documentKey(record)
		if err := s.documents.PutDocument(ctx, key, []byte(record.Document)); err != nil {
			return fmt.Errorf("failed to store document: %w", err)
		}
		body = ""
	}

	query := s.conn.Dialect().Rebind(`
		INSERT INTO revisions (id, history, revision, document, document_key, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.conn.Primary().ExecContext(ctx, query,
		record.ID.String(),
		record.History,
		record.Revision,
		body,
		key,
		record.Checksum,
		record.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s revision %d: %w", record.History, record.Revision, storage.ErrRevisionExists)
	} else if err != nil {
		return fmt.Errorf("failed to insert revision: %w", err)
	}
	return nil
}

// isUniqueViolation recognizes unique constraint errors of both drivers
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

const selectRevision = `
	SELECT id, history, revision, document, document_key, checksum, created_at
	FROM revisions`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(ctx context.Context, row rowScanner) (*storage.Record, error) {
	var (
		record    storage.Record
		key       string
		createdAt time.Time
	)
	if err := row.Scan(&record.ID, &record.History, &record.Revision, &record.Document, &key, &record.Checksum, &createdAt); err != nil {
		return nil, err
	}
	record.CreatedAt = createdAt.UTC()

	if key != "" {
		if s.documents == nil {
			return nil, fmt.Errorf("%s revision %d is stored in a document store that is not configured", record.History, record.Revision)
		}
		body, err := s.documents.GetDocument(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load document %s: %w", key, err)
		}
		record.Document = string(body)
	}
	return &record, nil
}

// GetRevision implements storage.RevisionReader
func (s *Store) GetRevision(ctx context.Context, history string, revision int) (_ *storage.Record, err error) {
	ctx, span := startSpan(ctx, "sqlstore.GetRevision",
		attribute.String("history", history),
		attribute.Int("revision", revision),
	)
	defer func() { endSpan(span, err) }()

	query := s.conn.Dialect().Rebind(selectRevision + ` WHERE history = ? AND revision = ?`)
	record, err := s.scan(ctx, s.conn.Replica().QueryRowContext(ctx, query, history, revision))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s revision %d: %w", history, revision, storage.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	return record, nil
}

// ListRevisions implements storage.RevisionReader
func (s *Store) ListRevisions(ctx context.Context, history string) (_ []*storage.Record, err error) {
	ctx, span := startSpan(ctx, "sqlstore.ListRevisions", attribute.String("history", history))
	defer func() { endSpan(span, err) }()

	query := s.conn.Dialect().Rebind(selectRevision + ` WHERE history = ? ORDER BY revision`)
	rows, err := s.conn.Replica().QueryContext(ctx, query, history)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		record, err := s.scan(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("history %s: %w", history, storage.ErrNotFound)
	}
	span.SetAttributes(attribute.Int("revisions", len(records)))
	return records, nil
}

// ListHistories implements storage.RevisionReader
func (s *Store) ListHistories(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Replica().QueryContext(ctx, `SELECT DISTINCT history FROM revisions ORDER BY history`)
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}
	defer rows.Close()

	var histories []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

// HealthCheck implements storage.HealthChecker
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.conn.HealthCheck(ctx); err != nil {
		return err
	}
	if s.documents != nil {
		return s.documents.HealthCheck(ctx)
	}
	return nil
}

// Close closes the database connections
func (s *Store) Close() error {
	return s.conn.Close()
}
