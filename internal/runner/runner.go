package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/dedupe"
	"github.com/bakkerme/free-game-notifier/internal/observability/otelx"
)

// Flow is everything one check cycle needs. It is built once from config.
type Flow struct {
	Collectors []core.Collector
	Filters    []core.RecordFilter
	Dispatcher core.Dispatcher
	SeenStore  dedupe.SeenStore
	Trigger    core.TriggerProcessor
	// MaxConcurrency bounds how many stores are processed at once. Values below 1 mean 1.
	MaxConcurrency int
	// StoreTimeout bounds each store's collect-filter-dispatch pass. Zero disables it.
	StoreTimeout time.Duration
}

func (f *Flow) Validate() error {
	if f == nil {
		return fmt.Errorf("flow is required")
	}
	if f.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}
	if f.SeenStore == nil {
		return fmt.Errorf("seen store is required")
	}
	for _, c := range f.Collectors {
		if c == nil {
			continue
		}
		if !c.Store().Valid() {
			return fmt.Errorf("collector %s: unknown store %q", c.Name(), c.Store())
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("collector %s: %w", c.Name(), err)
		}
	}
	return nil
}

// Runner executes check cycles. At most one cycle runs at a time.
type Runner struct {
	logger  *slog.Logger
	flow    *Flow
	dedup   *dedupe.Filter
	tracer  trace.Tracer
	running atomic.Bool
	last    atomic.Pointer[core.CycleReport]

	// mu guards stopped and every cycles.Add so Wait never races a new cycle.
	mu      sync.Mutex
	stopped bool
	cycles  sync.WaitGroup
}

// markTimeout bounds a seen-store write after a delivery. The write is detached
// from the store context: a delivered game must be recorded even after the
// store deadline or a shutdown signal.
const markTimeout = 10 * time.Second

func New(logger *slog.Logger, flow *Flow) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := flow.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		logger: logger,
		flow:   flow,
		dedup:  dedupe.NewFilter(flow.SeenStore),
		tracer: otelx.Tracer("runner"),
	}, nil
}

// Start subscribes to the flow's trigger and runs a cycle per event. Events
// that arrive while a cycle is running are dropped.
func (r *Runner) Start(ctx context.Context) error {
	if r.flow.Trigger == nil {
		return fmt.Errorf("trigger is required")
	}
	events, err := r.flow.Trigger.Start(ctx)
	if err != nil {
		return err
	}
	go r.listen(ctx, events)
	return nil
}

// Wait blocks until cycles started by triggers have finished. Triggers after
// Wait is called are refused.
func (r *Runner) Wait() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cycles.Wait()
}

func (r *Runner) listen(ctx context.Context, events <-chan core.TriggerEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch err := r.Trigger(ctx, event.Reason); {
			case errors.Is(err, core.ErrCycleInProgress):
				r.logger.Warn("check cycle still running, dropping trigger", "reason", event.Reason, "time", event.Timestamp)
			case err != nil:
				return
			}
		}
	}
}

// Trigger starts a cycle in the background. It returns ErrCycleInProgress
// without starting anything when a cycle is already running, and core.ErrStopped
// once ctx is done or Wait has been called.
func (r *Runner) Trigger(ctx context.Context, reason string) error {
	if err := ctx.Err(); err != nil {
		return core.ErrStopped
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return core.ErrStopped
	}
	if !r.running.CompareAndSwap(false, true) {
		return core.ErrCycleInProgress
	}
	r.cycles.Add(1)
	go func() {
		defer r.cycles.Done()
		defer r.running.Store(false)
		r.logger.Info("trigger event", "reason", reason)
		if _, err := r.runCycle(ctx); err != nil {
			r.logger.Error("check cycle failed", "error", err)
		}
	}()
	return nil
}

// Running reports whether a cycle is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// LastReport returns the report of the most recent finished cycle, or nil.
func (r *Runner) LastReport() *core.CycleReport {
	return r.last.Load()
}

// RunOnce performs one full pass over every store. The error is non-nil only
// when another cycle is running or ctx ends; store failures are in the report.
func (r *Runner) RunOnce(ctx context.Context) (*core.CycleReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, core.ErrCycleInProgress
	}
	defer r.running.Store(false)
	return r.runCycle(ctx)
}

// runCycle does the work of RunOnce. The caller holds the running guard.
func (r *Runner) runCycle(ctx context.Context) (*core.CycleReport, error) {
	report := &core.CycleReport{
		ID:        fmt.Sprintf("cycle-%d", time.Now().UnixNano()),
		StartedAt: time.Now().UTC(),
		Status:    core.CycleStatusRunning,
	}
	logger := r.logger.With("cycle_id", report.ID)
	ctx = core.WithCycleID(ctx, report.ID)
	ctx = core.WithLogger(ctx, logger)
	ctx, span := r.tracer.Start(ctx, "check_cycle", trace.WithAttributes(attribute.String("cycle.id", report.ID)))
	defer span.End()

	groups := r.collectorsByStore()
	for _, store := range core.Stores {
		if len(groups[store]) > 0 {
			report.Stores = append(report.Stores, &core.StoreReport{Store: store})
		}
	}
	logger.Info("check cycle started", "stores", len(report.Stores))

	limit := r.flow.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

loop:
	for _, storeReport := range report.Stores {
		storeReport := storeReport
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.runStore(ctx, groups[storeReport.Store], storeReport)
		}()
	}
	wg.Wait()

	completedAt := time.Now().UTC()
	report.CompletedAt = &completedAt
	report.Status = core.CycleStatusCompleted
	for _, s := range report.Stores {
		if s.Skipped || len(s.Errors) > 0 || s.Stage != core.StageDone {
			report.Status = core.CycleStatusPartial
		}
	}
	if err := ctx.Err(); err != nil {
		report.Status = core.CycleStatusCancelled
		report.Reason = err.Error()
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("check cycle cancelled", "error", err)
		r.last.Store(report)
		return report, err
	}

	span.SetAttributes(attribute.Int("cycle.delivered", report.Delivered()), attribute.String("cycle.status", string(report.Status)))
	logger.Info("check cycle finished", "status", report.Status, "delivered", report.Delivered(), "duration", completedAt.Sub(report.StartedAt))
	r.last.Store(report)
	return report, nil
}

func (r *Runner) collectorsByStore() map[core.Store][]core.Collector {
	groups := map[core.Store][]core.Collector{}
	for _, c := range r.flow.Collectors {
		if c == nil {
			continue
		}
		groups[c.Store()] = append(groups[c.Store()], c)
	}
	return groups
}

// runStore never returns an error; everything that goes wrong is recorded on
// the store report so other stores are unaffected.
func (r *Runner) runStore(ctx context.Context, collectors []core.Collector, rep *core.StoreReport) {
	store := rep.Store
	if r.flow.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.flow.StoreTimeout)
		defer cancel()
	}
	logger := core.LoggerFromContext(ctx).With("store", string(store))
	ctx = core.WithStore(ctx, store)
	ctx = core.WithLogger(ctx, logger)
	ctx, span := r.tracer.Start(ctx, "store", trace.WithAttributes(attribute.String("store", string(store))))
	defer span.End()

	rep.Stage = core.StageCollecting
	records := r.collect(ctx, logger, collectors, rep)
	rep.Collected = len(records)

	rep.Stage = core.StageFiltering
	candidates, ok := r.filter(ctx, logger, records, rep)
	if !ok {
		span.SetStatus(codes.Error, "seen store unavailable")
		return
	}
	rep.New = len(candidates)

	rep.Stage = core.StageDispatching
	if !r.dispatch(ctx, logger, candidates, rep) {
		span.SetStatus(codes.Error, "seen store unavailable")
		return
	}
	rep.Stage = core.StageDone

	span.SetAttributes(
		attribute.Int("store.collected", rep.Collected),
		attribute.Int("store.new", rep.New),
		attribute.Int("store.delivered", rep.Delivered),
		attribute.Int("store.failed", rep.Failed),
	)
	logger.Info("store processed",
		"collected", rep.Collected,
		"filtered", rep.Filtered,
		"seen", rep.Seen,
		"new", rep.New,
		"delivered", rep.Delivered,
		"failed", rep.Failed,
	)
}

// collect runs every collector of the store and merges their records,
// keeping the first record per seen entry.
func (r *Runner) collect(ctx context.Context, logger *slog.Logger, collectors []core.Collector, rep *core.StoreReport) []core.GameRecord {
	var records []core.GameRecord
	seen := map[core.SeenEntry]bool{}
	for _, collector := range collectors {
		got, err := safeCollect(ctx, collector)
		if err != nil {
			cerr := &core.CollectorError{Store: rep.Store, Collector: collector.Name(), Err: err}
			logger.Error("collector failed", "collector", collector.Name(), "error", err)
			rep.AddError(core.StageCollecting, collector.Name(), cerr)
			continue
		}
		for _, record := range got {
			if record.Store != rep.Store {
				logger.Warn("collector returned a record for another store", "collector", collector.Name(), "record_store", string(record.Store), "id", record.ID)
				continue
			}
			record.ID = core.NormalizeID(record.ID)
			if record.ID == "" {
				logger.Warn("collector returned a record without id", "collector", collector.Name(), "title", record.Title)
				continue
			}
			entry := record.SeenEntry()
			if seen[entry] {
				continue
			}
			seen[entry] = true
			records = append(records, record)
		}
		logger.Debug("collector finished", "collector", collector.Name(), "records", len(got))
	}
	return records
}

func safeCollect(ctx context.Context, collector core.Collector) (records []core.GameRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			records = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return collector.Collect(ctx)
}

// filter applies the record filters and then the seen set. A seen set failure
// stops the store for this cycle; ok is false in that case.
func (r *Runner) filter(ctx context.Context, logger *slog.Logger, records []core.GameRecord, rep *core.StoreReport) (candidates []core.GameRecord, ok bool) {
	for _, record := range records {
		if !r.keep(ctx, logger, record, rep) {
			rep.Filtered++
			continue
		}
		isNew, err := r.dedup.IsNew(ctx, record)
		if err != nil {
			logger.Error("seen store unavailable, skipping store this cycle",
				"partition", record.SeenEntry().Partition(), "error", err, "duplicate_risk", true)
			rep.AddError(core.StageFiltering, "seen_store", err)
			rep.Skipped = true
			return nil, false
		}
		if !isNew {
			rep.Seen++
			continue
		}
		candidates = append(candidates, record)
	}
	return candidates, true
}

// keep reports whether every filter keeps the record. A filter that fails to
// evaluate does not drop the record.
func (r *Runner) keep(ctx context.Context, logger *slog.Logger, record core.GameRecord, rep *core.StoreReport) bool {
	for _, f := range r.flow.Filters {
		if f == nil {
			continue
		}
		ok, err := f.Keep(ctx, record)
		if err != nil {
			logger.Warn("filter failed, keeping record", "filter", f.Name(), "id", record.ID, "error", err)
			rep.AddError(core.StageFiltering, f.Name(), err)
			continue
		}
		if !ok {
			logger.Debug("record filtered", "filter", f.Name(), "id", record.ID, "title", record.Title)
			return false
		}
	}
	return true
}

// dispatch notifies each candidate and marks it seen only once delivered. A
// mark failure stops the store so the remaining candidates stay eligible for
// the next cycle instead of risking more duplicates.
func (r *Runner) dispatch(ctx context.Context, logger *slog.Logger, candidates []core.GameRecord, rep *core.StoreReport) bool {
	for _, record := range candidates {
		if err := ctx.Err(); err != nil {
			rep.AddError(core.StageDispatching, "context", err)
			return true
		}
		result := r.flow.Dispatcher.Notify(ctx, record)
		if !result.Delivered {
			rep.Failed++
			err := result.Err
			if err == nil {
				err = &core.DispatchError{Store: record.Store, ID: record.ID, Err: errors.New("not delivered")}
			}
			logger.Error("notification failed, will retry next cycle", "id", record.ID, "title", record.Title, "error", err)
			rep.AddError(core.StageDispatching, record.ID, err)
			continue
		}
		rep.Delivered++
		if err := r.markSeen(ctx, record); err != nil {
			logger.Error("notification sent but not recorded",
				"id", record.ID, "partition", record.SeenEntry().Partition(), "error", err, "duplicate_risk", true)
			rep.AddError(core.StageDispatching, "seen_store", err)
			rep.Skipped = true
			return false
		}
	}
	return true
}

func (r *Runner) markSeen(ctx context.Context, record core.GameRecord) error {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	return r.flow.SeenStore.MarkSeen(markCtx, record.SeenEntry())
}
