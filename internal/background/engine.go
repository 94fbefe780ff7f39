package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
	"github.com/eternisai/groupspend-sync/internal/logger"
	"github.com/eternisai/groupspend-sync/internal/metrics"
)

// Source describes one polled collection.
type Source[T any] struct {
	// Name labels logs and metrics, e.g. "invites".
	Name string
	// Fetch returns the full current collection for the authenticated user.
	Fetch func(ctx context.Context) ([]T, error)
	// ID returns an item's identifier.
	ID func(T) string
	// Outstanding reports whether an item is still unread or pending.
	Outstanding func(T) bool
}

// Engine polls a Source on a fixed interval and diffs each result against the
// previously observed set.
//
// Lifecycle:
//  1. Restart(identity) tears down the previous loop and resets observed state
//  2. An immediate tick fires, then one per interval
//  3. Ticks run in their own goroutines and may overlap; results from a
//     previous identity are discarded
//  4. Stop cancels the loop and waits for in-flight ticks
//
// Thread-safety: All methods are thread-safe.
type Engine[T any] struct {
	source   Source[T]
	interval time.Duration
	logger   *logger.Logger

	mu       sync.Mutex
	identity string
	gen      uint64
	cancel   context.CancelFunc
	observed map[string]T
	items    []T
	hasNew   bool
	lastErr  error
	lastAt   time.Time

	// seq orders snapshots; publishMu and published drop ones that lost a race.
	seq       uint64
	publishMu sync.Mutex
	published uint64

	listenersMu sync.RWMutex
	listeners   []func(Snapshot[T])

	wg sync.WaitGroup
}

// NewEngine creates an idle engine. Nothing polls until Restart is called with
// a non-empty identity.
func NewEngine[T any](source Source[T], interval time.Duration, log *logger.Logger) *Engine[T] {
	return &Engine[T]{
		source:   source,
		interval: interval,
		logger:   &logger.Logger{Logger: log.WithComponent("sync_engine").With(slog.String("engine", source.Name))},
	}
}

// Name returns the source name.
func (e *Engine[T]) Name() string {
	return e.source.Name
}

// OnUpdate registers fn to receive published snapshots in order. fn must not
// call Refresh or Restart.
func (e *Engine[T]) OnUpdate(fn func(Snapshot[T])) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

// Restart switches the engine to identity. The previous loop is cancelled and
// the observed set cleared. An empty identity leaves the engine idle.
func (e *Engine[T]) Restart(ctx context.Context, identity string) {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	gen := e.gen
	e.identity = identity
	e.observed = nil
	e.items = nil
	e.hasNew = false
	e.lastErr = nil

	var loopCtx context.Context
	if identity != "" {
		loopCtx, e.cancel = context.WithCancel(logger.WithEngine(ctx, e.source.Name))
		e.wg.Add(1)
	}
	seq, snap := e.commitLocked(nil)
	e.mu.Unlock()

	e.publish(seq, snap)

	if identity == "" {
		e.logger.Debug("engine idle, no authenticated user")
		return
	}

	go e.run(loopCtx, gen)

	e.logger.Info("engine started",
		slog.String("user_id", identity),
		slog.Duration("interval", e.interval))
}

func (e *Engine[T]) run(ctx context.Context, gen uint64) {
	defer e.wg.Done()

	e.spawnTick(ctx, gen)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.spawnTick(ctx, gen)
		}
	}
}

// spawnTick does not wait for the previous tick to finish.
func (e *Engine[T]) spawnTick(ctx context.Context, gen uint64) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.tick(ctx, gen)
	}()
}

// Refresh runs one tick synchronously for the current identity. Stop waits
// for it like any scheduled tick.
func (e *Engine[T]) Refresh(ctx context.Context) {
	e.mu.Lock()
	gen, identity := e.gen, e.identity
	if identity == "" {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	defer e.wg.Done()
	e.tick(logger.WithEngine(ctx, e.source.Name), gen)
}

func (e *Engine[T]) tick(ctx context.Context, gen uint64) {
	items, err := e.source.Fetch(ctx)

	e.mu.Lock()
	if gen != e.gen || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}

	log := e.logger.WithContext(ctx)

	if err != nil {
		e.observed = nil
		e.items = nil
		e.hasNew = false
		e.lastErr = err
		e.lastAt = time.Now()
		seq, snap := e.commitLocked(nil)
		e.mu.Unlock()

		result := "error"
		if apperrors.IsSessionInvalid(err) {
			result = "unauthenticated"
		}
		metrics.PollTicksTotal.WithLabelValues(e.source.Name, result).Inc()
		metrics.OutstandingItems.WithLabelValues(e.source.Name).Set(0)
		log.Warn("poll failed, observed set reset", slog.String("error", err.Error()))

		e.publish(seq, snap)
		return
	}

	next := make(map[string]T, len(items))
	var arrived []T
	outstanding := 0
	for _, item := range items {
		id := e.source.ID(item)
		next[id] = item
		if !e.source.Outstanding(item) {
			continue
		}
		outstanding++
		if _, seen := e.observed[id]; !seen {
			arrived = append(arrived, item)
		}
	}

	if len(arrived) > 0 {
		e.hasNew = true
	}
	if outstanding == 0 {
		e.hasNew = false
	}
	e.observed = next
	e.items = items
	e.lastErr = nil
	e.lastAt = time.Now()
	seq, snap := e.commitLocked(arrived)
	e.mu.Unlock()

	metrics.PollTicksTotal.WithLabelValues(e.source.Name, "success").Inc()
	metrics.OutstandingItems.WithLabelValues(e.source.Name).Set(float64(outstanding))
	log.Debug("poll complete",
		slog.Int("items", len(items)),
		slog.Int("outstanding", outstanding),
		slog.Int("arrived", len(arrived)),
		slog.Bool("has_new", snap.HasNew))

	e.publish(seq, snap)
}

// commitLocked must be called with mu held.
func (e *Engine[T]) commitLocked(arrived []T) (uint64, Snapshot[T]) {
	e.seq++
	return e.seq, e.snapshotLocked(arrived)
}

func (e *Engine[T]) snapshotLocked(arrived []T) Snapshot[T] {
	snap := Snapshot[T]{
		Engine:   e.source.Name,
		Identity: e.identity,
		Items:    append([]T(nil), e.items...),
		Arrived:  arrived,
		HasNew:   e.hasNew,
		Err:      e.lastErr,
		At:       e.lastAt,
	}
	for _, item := range e.items {
		if e.source.Outstanding(item) {
			snap.Outstanding = append(snap.Outstanding, item)
		}
	}
	return snap
}

// publish delivers snap unless a later snapshot was already delivered.
func (e *Engine[T]) publish(seq uint64, snap Snapshot[T]) {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()

	if seq <= e.published {
		return
	}
	e.published = seq

	e.listenersMu.RLock()
	listeners := e.listeners
	e.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Snapshot returns the current observed state.
func (e *Engine[T]) Snapshot() Snapshot[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(nil)
}

// HasNew reports the "new items" signal.
func (e *Engine[T]) HasNew() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasNew
}

// ClearNew resets the "new items" signal locally without contacting the server.
func (e *Engine[T]) ClearNew() {
	e.mu.Lock()
	e.hasNew = false
	e.mu.Unlock()
}

// Stop cancels the loop and waits for in-flight ticks.
func (e *Engine[T]) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.identity = ""
	e.mu.Unlock()

	e.wg.Wait()
}
