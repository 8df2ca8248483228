package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
	"github.com/platinummonkey/apievolve/pkg/observability"
	"github.com/platinummonkey/apievolve/pkg/resolution"
	"github.com/platinummonkey/apievolve/pkg/revision"
	"github.com/platinummonkey/apievolve/pkg/schema"
	"github.com/platinummonkey/apievolve/pkg/storage"
)

var tracer = otel.Tracer("apievolve/service")

var (
	// ErrWrongSide is returned when a provider document is submitted for
	// resolution or a consumer document is saved as a revision
	ErrWrongSide = errors.New("definition has the wrong side")
	// ErrHistoryMismatch is returned when a document names another API
	ErrHistoryMismatch = errors.New("document belongs to another history")
	// ErrCorruptHistory is returned when stored revisions no longer compile
	ErrCorruptHistory = errors.New("stored history does not compile")
)

const historyCache = "history"

// Config configures the service
type Config struct {
	// CacheSize is the number of compiled histories kept in memory
	CacheSize int
	// CacheTTL bounds how long a compiled history is served without reloading
	CacheTTL time.Duration
	// Backend names the store in metrics
	Backend string
}

// DefaultConfig returns the default service configuration
func DefaultConfig() Config {
	return Config{
		CacheSize: 128,
		CacheTTL:  10 * time.Minute,
		Backend:   "filesystem",
	}
}

// Service stores provider revisions and resolves consumer definitions
// against them. It is safe for concurrent use.
type Service struct {
	store    storage.Store
	config   Config
	resolver *resolution.Resolver
	logger   *observability.Logger
	metrics  *observability.Metrics

	histories *expirable.LRU[string, *revision.History]
	loads     singleflight.Group

	// saves serializes revision numbering within this process; the store
	// rejects concurrent writers of other processes with ErrRevisionExists
	saves sync.Mutex
}

// New creates a service over store. Logger and metrics may be nil.
func New(store storage.Store, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Service {
	defaults := DefaultConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaults.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.Backend == "" {
		cfg.Backend = defaults.Backend
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Service{
		store:    store,
		config:   cfg,
		resolver: resolution.NewResolver(),
		logger:   logger.WithField("component", "service"),
		metrics:  metrics,
	}
	s.histories = expirable.NewLRU[string, *revision.History](cfg.CacheSize, func(string, *revision.History) {
		s.metrics.RecordCacheEviction(historyCache)
	}, cfg.CacheTTL)
	return s
}

// Store returns the underlying revision store
func (s *Service) Store() storage.Store {
	return s.store
}

// SaveRevision compiles document as the next revision of history and
// persists it. The document is linked to the latest stored revision; its
// own revision number is replaced by the next free one. Documents that do
// not compile against their predecessor or whose revision is inconsistent
// on its own are rejected.
func (s *Service) SaveRevision(ctx context.Context, history string, document []byte) (_ *storage.Record, err error) {
	ctx, span := tracer.Start(ctx, "service.SaveRevision", trace.WithAttributes(attribute.String("history", history)))
	defer func() { endSpan(span, err) }()

	status := "accepted"
	defer func() {
		if err != nil && status == "accepted" {
			status = "error"
		}
		s.metrics.RecordRevisionSaved(status)
	}()

	doc, err := schema.Parse(document)
	if err != nil {
		status = "rejected"
		return nil, err
	}
	if doc.Side == "" {
		doc.Side = apimodel.SideProvider.String()
	}
	if doc.Side != apimodel.SideProvider.String() {
		status = "rejected"
		return nil, fmt.Errorf("%w: expected a provider definition, got %s", ErrWrongSide, doc.Side)
	}
	if doc.API != history {
		status = "rejected"
		return nil, fmt.Errorf("%w: document describes %s, not %s", ErrHistoryMismatch, doc.API, history)
	}

	s.saves.Lock()
	defer s.saves.Unlock()

	var previous []*apimodel.Definition
	current, err := s.History(ctx, history)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		doc.Revision = 0
	case err != nil:
		return nil, err
	default:
		previous = current.Revisions()
		doc.Revision = current.Latest().Revision() + 1
	}

	var predecessor *apimodel.Definition
	if len(previous) > 0 {
		predecessor = previous[len(previous)-1]
	}
	def, err := schema.Compile(doc, predecessor)
	if err != nil {
		status = "rejected"
		return nil, err
	}

	chain := append(append([]*apimodel.Definition(nil), previous...), def)
	next, err := revision.NewHistory(history, chain...)
	if err != nil {
		status = "rejected"
		return nil, err
	}
	if _, err := next.Merge([]int{def.Revision()}); err != nil {
		status = "rejected"
		return nil, err
	}

	body, err := schema.Marshal(doc)
	if err != nil {
		return nil, err
	}
	record := storage.NewRecord(history, def.Revision(), string(body))

	start := time.Now()
	err = s.store.SaveRevision(ctx, record)
	s.metrics.RecordStorageOperation("save_revision", s.config.Backend, start, err)
	if err != nil {
		if errors.Is(err, storage.ErrRevisionExists) {
			status = "conflict"
			s.Invalidate(history)
		}
		return nil, err
	}

	s.histories.Add(history, next)
	s.metrics.SetCacheEntries(historyCache, s.histories.Len())

	span.SetAttributes(attribute.Int("revision", record.Revision))
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"history":  history,
		"revision": record.Revision,
	}).Info("Revision saved")
	return record, nil
}

// History returns the compiled revision history of name. Compiled histories
// are cached; concurrent loads of the same history share one compilation.
func (s *Service) History(ctx context.Context, name string) (*revision.History, error) {
	if h, ok := s.histories.Get(name); ok {
		s.metrics.RecordCacheLookup(historyCache, true)
		return h, nil
	}
	s.metrics.RecordCacheLookup(historyCache, false)

	v, err, _ := s.loads.Do(name, func() (interface{}, error) {
		h, err := s.loadHistory(ctx, name)
		if err != nil {
			return nil, err
		}
		s.histories.Add(name, h)
		s.metrics.SetCacheEntries(historyCache, s.histories.Len())
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*revision.History), nil
}

func (s *Service) loadHistory(ctx context.Context, name string) (_ *revision.History, err error) {
	ctx, span := tracer.Start(ctx, "service.loadHistory", trace.WithAttributes(attribute.String("history", name)))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	records, err := s.store.ListRevisions(ctx, name)
	s.metrics.RecordStorageOperation("list_revisions", s.config.Backend, start, err)
	if err != nil {
		return nil, err
	}

	compileStart := time.Now()
	h, err := CompileHistory(name, records)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCompile(compileStart)

	span.SetAttributes(attribute.Int("revisions", len(records)))
	s.logger.WithFields(map[string]interface{}{
		"history":   name,
		"revisions": len(records),
	}).Debug("History compiled")
	return h, nil
}

// CompileHistory compiles stored revision records, oldest first, into a
// history
func CompileHistory(name string, records []*storage.Record) (*revision.History, error) {
	defs := make([]*apimodel.Definition, 0, len(records))
	var predecessor *apimodel.Definition
	for _, record := range records {
		doc, err := schema.Parse([]byte(record.Document))
		if err != nil {
			return nil, fmt.Errorf("%w: %s revision %d: %w", ErrCorruptHistory, name, record.Revision, err)
		}
		if doc.Revision != record.Revision {
			return nil, fmt.Errorf("%w: %s revision %d holds document of revision %d", ErrCorruptHistory, name, record.Revision, doc.Revision)
		}
		def, err := schema.Compile(doc, predecessor)
		if err != nil {
			return nil, fmt.Errorf("%w: %s revision %d: %w", ErrCorruptHistory, name, record.Revision, err)
		}
		defs = append(defs, def)
		predecessor = def
	}
	return revision.NewHistory(name, defs...)
}

// Resolve resolves a consumer document against the supported revisions of
// history. Resolution failures are returned as *compatibility.ViolationError.
func (s *Service) Resolve(ctx context.Context, history string, supported []int, consumerDocument []byte) (_ *resolution.DefinitionResolution, err error) {
	ctx, span := tracer.Start(ctx, "service.Resolve", trace.WithAttributes(
		attribute.String("history", history),
		attribute.IntSlice("supported", supported),
	))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	outcome := "error"
	defer func() { s.metrics.RecordResolution(outcome, start) }()

	consumer, err := CompileConsumer(consumerDocument)
	if err != nil {
		outcome = "invalid"
		return nil, err
	}

	h, err := s.History(ctx, history)
	if err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(h, supported, consumer)
	var verr *compatibility.ViolationError
	if errors.As(err, &verr) {
		outcome = "rejected"
		s.recordViolations(verr.Violations)
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"history":    history,
			"consumer":   consumer.Name(),
			"violations": len(verr.Violations),
		}).Info("Consumer definition rejected")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	outcome = "resolved"
	s.recordViolations(res.Notes())
	span.SetAttributes(attribute.String("consumer", consumer.Name()))
	return res, nil
}

// CompileConsumer parses and compiles a consumer document. A document
// without a side is taken to be a consumer definition.
func CompileConsumer(document []byte) (*apimodel.Definition, error) {
	doc, err := schema.Parse(document)
	if err != nil {
		return nil, err
	}
	if doc.Side == "" {
		doc.Side = apimodel.SideConsumer.String()
	}
	if doc.Side != apimodel.SideConsumer.String() {
		return nil, fmt.Errorf("%w: expected a consumer definition, got %s", ErrWrongSide, doc.Side)
	}
	return schema.Compile(doc, nil)
}

// Merge merges the supported revisions of history
func (s *Service) Merge(ctx context.Context, history string, supported []int) (_ *revision.MergedModel, err error) {
	ctx, span := tracer.Start(ctx, "service.Merge", trace.WithAttributes(
		attribute.String("history", history),
		attribute.IntSlice("supported", supported),
	))
	defer func() { endSpan(span, err) }()

	h, err := s.History(ctx, history)
	if err != nil {
		return nil, err
	}

	merged, err := h.Merge(supported)
	s.metrics.RecordMerge(err)
	var verr *compatibility.ViolationError
	if errors.As(err, &verr) {
		s.recordViolations(verr.Violations)
	}
	return merged, err
}

// Invalidate drops the compiled history of name so that the next access
// reloads it from the store
func (s *Service) Invalidate(history string) {
	if s.histories.Remove(history) {
		s.logger.WithField("history", history).Debug("History invalidated")
	}
	s.metrics.SetCacheEntries(historyCache, s.histories.Len())
}

// Histories lists the names of all stored histories
func (s *Service) Histories(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := s.store.ListHistories(ctx)
	s.metrics.RecordStorageOperation("list_histories", s.config.Backend, start, err)
	return names, err
}

// Revisions lists the stored revisions of history, oldest first
func (s *Service) Revisions(ctx context.Context, history string) ([]*storage.Record, error) {
	start := time.Now()
	records, err := s.store.ListRevisions(ctx, history)
	s.metrics.RecordStorageOperation("list_revisions", s.config.Backend, start, err)
	return records, err
}

// Revision returns one stored revision
func (s *Service) Revision(ctx context.Context, history string, number int) (*storage.Record, error) {
	start := time.Now()
	record, err := s.store.GetRevision(ctx, history, number)
	s.metrics.RecordStorageOperation("get_revision", s.config.Backend, start, err)
	return record, err
}

// WatchInvalidations invalidates every history received on changes until
// ctx is done or changes is closed
func (s *Service) WatchInvalidations(ctx context.Context, changes <-chan string) {
	defer observability.RecoverPanic(s.logger, "history invalidation")
	for {
		select {
		case <-ctx.Done():
			return
		case history, ok := <-changes:
			if !ok {
				return
			}
			s.Invalidate(history)
		}
	}
}

func (s *Service) recordViolations(violations []compatibility.Violation) {
	for _, v := range violations {
		s.metrics.RecordViolation(v.Kind.String(), v.Level.String())
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
