package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown histories and revisions
	ErrNotFound = errors.New("not found")
	// ErrRevisionExists is returned when a revision number is already taken
	ErrRevisionExists = errors.New("revision already exists")
)

// Record is one stored revision document of a history
type Record struct {
	ID        uuid.UUID `json:"id"`
	History   string    `json:"history"`
	Revision  int       `json:"revision"`
	Document  string    `json:"document,omitempty"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord creates a record for a document
func NewRecord(history string, revision int, document string) *Record {
	return &Record{
		ID:        uuid.New(),
		History:   history,
		Revision:  revision,
		Document:  document,
		Checksum:  Checksum(document),
		CreatedAt: time.Now().UTC(),
	}
}

// Checksum returns the hex encoded SHA-256 of a document
func Checksum(document string) string {
	sum := sha256.Sum256([]byte(document))
	return hex.EncodeToString(sum[:])
}

// RevisionReader reads stored revisions
type RevisionReader interface {
	// GetRevision returns one revision including its document
	GetRevision(ctx context.Context, history string, revision int) (*Record, error)
	// ListRevisions returns all revisions of a history in ascending order,
	// documents included. Unknown histories yield ErrNotFound.
	ListRevisions(ctx context.Context, history string) ([]*Record, error)
	// ListHistories returns the names of all histories, sorted
	ListHistories(ctx context.Context) ([]string, error)
}

// RevisionWriter stores revisions
type RevisionWriter interface {
	// SaveRevision stores a new revision. Taken revision numbers yield
	// ErrRevisionExists.
	SaveRevision(ctx context.Context, record *Record) error
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the complete revision repository
type Store interface {
	RevisionReader
	RevisionWriter
	HealthChecker
	io.Closer
}

// Config for storage backend
type Config struct {
	Type string // "filesystem", "postgres", "sqlite"

	// Filesystem config
	FilesystemRoot string

	// SQL config
	DatabaseURL     string
	ReplicaURLs     []string
	MaxConns        int
	MinConns        int
	ConnectTimeout  time.Duration
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// S3 config, documents stay in the database when S3Bucket is empty
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config, the cache is disabled when RedisURL is empty
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	CacheTTL        time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:            "filesystem",
		FilesystemRoot:  "/tmp/apievolve",
		MaxConns:        20,
		MinConns:        2,
		ConnectTimeout:  10 * time.Second,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		S3Region:        "us-east-1",
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
		CacheTTL:        time.Hour,
	}
}
