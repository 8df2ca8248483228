package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	recordFile     = "record.json"
	definitionFile = "definition.yaml"
	revisionsDir   = "revisions"
)

// FileSystemStore keeps revisions on the local filesystem:
//
//	<root>/<history>/revisions/<n>/record.json
//	<root>/<history>/revisions/<n>/definition.yaml
type FileSystemStore struct {
	rootDir string
	mu      sync.Mutex
}

// NewFileSystemStore creates a new filesystem-based store
func NewFileSystemStore(rootDir string) (*FileSystemStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemStore{rootDir: rootDir}, nil
}

func (s *FileSystemStore) revisionDir(history string, revision int) string {
	return filepath.Join(s.rootDir, history, revisionsDir, strconv.Itoa(revision))
}

func validHistoryName(history string) error {
	if history == "" || history == "." || history == ".." || strings.ContainsAny(history, `/\`) {
		return fmt.Errorf("invalid history name %q", history)
	}
	return nil
}

// SaveRevision implements RevisionWriter.SaveRevision
func (s *FileSystemStore) SaveRevision(ctx context.Context, record *Record) error {
	if err := validHistoryName(record.History); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.revisionDir(record.History, record.Revision)
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s revision %d: %w", record.History, record.Revision, ErrRevisionExists)
		}
		return fmt.Errorf("failed to create revision directory: %w", err)
	}

	meta := *record
	meta.Document = ""
	data, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// the definition is written first, a revision is visible once its record exists
	if err := os.WriteFile(filepath.Join(dir, definitionFile), []byte(record.Document), 0644); err != nil {
		return fmt.Errorf("failed to write definition file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, recordFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	return nil
}

// GetRevision implements RevisionReader.GetRevision
func (s *FileSystemStore) GetRevision(ctx context.Context, history string, revision int) (*Record, error) {
	if err := validHistoryName(history); err != nil {
		return nil, err
	}

	dir := s.revisionDir(history, revision)
	data, err := os.ReadFile(filepath.Join(dir, recordFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s revision %d: %w", history, revision, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	document, err := os.ReadFile(filepath.Join(dir, definitionFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	record.Document = string(document)
	return &record, nil
}

// ListRevisions implements RevisionReader.ListRevisions
func (s *FileSystemStore) ListRevisions(ctx context.Context, history string) ([]*Record, error) {
	if err := validHistoryName(history); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.rootDir, history, revisionsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("history %s: %w", history, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read revisions directory: %w", err)
	}

	var numbers []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	records := make([]*Record, 0, len(numbers))
	for _, n := range numbers {
		record, err := s.GetRevision(ctx, history, n)
		if errors.Is(err, ErrNotFound) {
			// revision directory without record, still being written
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to get revision %d: %w", n, err)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("history %s: %w", history, ErrNotFound)
	}
	return records, nil
}

// ListHistories implements RevisionReader.ListHistories
func (s *FileSystemStore) ListHistories(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	var histories []string
	for _, entry := range entries {
		if entry.IsDir() {
			histories = append(histories, entry.Name())
		}
	}
	sort.Strings(histories)
	return histories, nil
}

// HealthCheck implements HealthChecker.HealthCheck
func (s *FileSystemStore) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(s.rootDir); err != nil {
		return fmt.Errorf("filesystem store unhealthy: %w", err)
	}
	return nil
}

// Close implements io.Closer
func (s *FileSystemStore) Close() error {
	return nil
}

// Watch reports the names of histories whose revisions change on disk, for
// example when documents are copied into the store by another process. The
// channel is closed when ctx is done.
func (s *FileSystemStore) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.rootDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.rootDir, err)
	}

	histories, err := s.ListHistories(ctx)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, h := range histories {
		s.watchHistory(watcher, h)
	}

	changes := make(chan string, 16)
	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				history, ok := s.historyOf(event.Name)
				if !ok {
					continue
				}
				if event.Has(fsnotify.Create) {
					// new history or revisions directory, watch below it
					s.watchHistory(watcher, history)
				}
				select {
				case changes <- history:
				case <-ctx.Done():
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return changes, nil
}

// watchHistory adds the directories of a history to the watcher. Missing
// directories are skipped, they are picked up on creation.
func (s *FileSystemStore) watchHistory(watcher *fsnotify.Watcher, history string) {
	historyDir := filepath.Join(s.rootDir, history)
	_ = watcher.Add(historyDir)
	revisions := filepath.Join(historyDir, revisionsDir)
	_ = watcher.Add(revisions)

	entries, err := os.ReadDir(revisions)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			_ = watcher.Add(filepath.Join(revisions, entry.Name()))
		}
	}
}

// historyOf returns the history a path below the root belongs to
func (s *FileSystemStore) historyOf(path string) (string, bool) {
	rel, err := filepath.Rel(s.rootDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	history, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return history, history != ""
}
