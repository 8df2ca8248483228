package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/apievolve/pkg/observability"
)

// WarmerConfig configures a Warmer
type WarmerConfig struct {
	// Schedule is a standard five field cron expression or a descriptor
	// such as "@every 5m"
	Schedule string
	// Concurrency bounds the number of histories compiled in parallel
	Concurrency int
	// Timeout bounds one warm-up run
	Timeout time.Duration
}

// Warmer periodically recompiles all stored histories so that requests do
// not pay for the first compilation after a cache expiry
type Warmer struct {
	service *Service
	config  WarmerConfig
	cron    *cron.Cron
	logger  *observability.Logger

	mu      sync.Mutex
	lastRun WarmResult
}

// WarmResult describes one warm-up run
type WarmResult struct {
	Started   time.Time
	Histories int
	Failed    map[string]error
}

// NewWarmer creates a warmer for svc. The schedule is validated here.
func NewWarmer(svc *Service, config WarmerConfig, logger *observability.Logger) (*Warmer, error) {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	w := &Warmer{
		service: svc,
		config:  config,
		cron:    cron.New(),
		logger:  logger.WithField("component", "warmer"),
	}
	if _, err := w.cron.AddFunc(config.Schedule, w.run); err != nil {
		return nil, fmt.Errorf("invalid warm-up schedule %q: %w", config.Schedule, err)
	}
	return w, nil
}

// Start starts the schedule in the background
func (w *Warmer) Start() {
	w.logger.WithField("schedule", w.config.Schedule).Info("History warmer started")
	w.cron.Start()
}

// Stop stops the schedule and waits for a running warm-up to finish or ctx
// to be done
func (w *Warmer) Stop(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRun returns the result of the latest completed warm-up
func (w *Warmer) LastRun() WarmResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}

func (w *Warmer) run() {
	defer observability.RecoverPanic(w.logger, "history warm-up")

	ctx, cancel := context.WithTimeout(context.Background(), w.config.Timeout)
	defer cancel()

	result, err := w.Warm(ctx)
	if err != nil {
		w.logger.WithError(err).Error("History warm-up failed")
		return
	}
	w.logger.WithFields(map[string]interface{}{
		"histories": result.Histories,
		"failed":    len(result.Failed),
		"duration":  time.Since(result.Started).String(),
	}).Info("History warm-up complete")
}

// Warm invalidates and recompiles every stored history. Histories that fail
// to compile are reported in the result and do not stop the others.
func (w *Warmer) Warm(ctx context.Context) (WarmResult, error) {
	result := WarmResult{
		Started: time.Now(),
		Failed:  make(map[string]error),
	}

	names, err := w.service.Histories(ctx)
	if err != nil {
		return result, err
	}
	result.Histories = len(names)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, name := range names {
		g.Go(func() error {
			w.service.Invalidate(name)
			if _, err := w.service.History(gctx, name); err != nil {
				mu.Lock()
				result.Failed[name] = err
				mu.Unlock()
				w.logger.WithError(err).WithField("history", name).Warn("History failed to compile")
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	w.mu.Lock()
	w.lastRun = result
	w.mu.Unlock()
	return result, nil
}
