package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/dedupe"
	"github.com/bakkerme/free-game-notifier/internal/processors/filter"
)

type stubCollector struct {
	name    string
	store   core.Store
	records []core.GameRecord
	err     error
	panics  bool
	block   chan struct{}
	entered chan struct{}
}

func (c *stubCollector) Name() string      { return c.name }
func (c *stubCollector) Validate() error   { return nil }
func (c *stubCollector) Store() core.Store { return c.store }
func (c *stubCollector) Collect(ctx context.Context) ([]core.GameRecord, error) {
	if c.entered != nil {
		close(c.entered)
		c.entered = nil
	}
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.panics {
		panic("scraper exploded")
	}
	return c.records, c.err
}

type fakeDispatcher struct {
	mu    sync.Mutex
	sent  []core.GameRecord
	fail  map[string]bool
	calls int
}

func (d *fakeDispatcher) Notify(ctx context.Context, record core.GameRecord) core.DispatchResult {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.fail[record.ID] {
		return core.DispatchResult{Attempted: true, Err: &core.DispatchError{Store: record.Store, ID: record.ID, Err: errors.New("webhook down")}}
	}
	d.sent = append(d.sent, record)
	return core.DispatchResult{Attempted: true, Delivered: true}
}

func (d *fakeDispatcher) sentIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, len(d.sent))
	for i, r := range d.sent {
		ids[i] = string(r.Store) + "/" + r.ID
	}
	return ids
}

func game(store core.Store, id string) core.GameRecord {
	return core.GameRecord{Store: store, ID: id, Title: "Game " + id, URL: "https://example.com/" + id}
}

func newFileStore(t *testing.T, dir string) *dedupe.FileStore {
	t.Helper()
	store, err := dedupe.NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	_ = store.Load(context.Background())
	return store
}

func newRunner(t *testing.T, flow *Flow) *Runner {
	t.Helper()
	r, err := New(nil, flow)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func runOnce(t *testing.T, r *Runner) *core.CycleReport {
	t.Helper()
	report, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	return report
}

func TestDispatchThenMarkNotifiesOnce(t *testing.T) {
	seen := newFileStore(t, t.TempDir())
	dispatcher := &fakeDispatcher{}
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{&stubCollector{name: "epic", store: core.StoreEpic, records: []core.GameRecord{game(core.StoreEpic, "a")}}},
		Dispatcher: dispatcher,
		SeenStore:  seen,
	})

	first := runOnce(t, r)
	second := runOnce(t, r)

	if dispatcher.calls != 1 {
		t.Fatalf("dispatch calls=%d, want 1", dispatcher.calls)
	}
	if first.Delivered() != 1 || second.Delivered() != 0 {
		t.Fatalf("delivered first=%d second=%d", first.Delivered(), second.Delivered())
	}
	if s := second.Store(core.StoreEpic); s.Seen != 1 || s.New != 0 {
		t.Fatalf("second cycle report %+v", s)
	}
	if second.Status != core.CycleStatusCompleted {
		t.Fatalf("status=%s", second.Status)
	}
}

func TestFailedDispatchStaysUnmarked(t *testing.T) {
	seen := newFileStore(t, t.TempDir())
	dispatcher := &fakeDispatcher{fail: map[string]bool{"a": true}}
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{&stubCollector{name: "steam", store: core.StoreSteam, records: []core.GameRecord{game(core.StoreSteam, "a")}}},
		Dispatcher: dispatcher,
		SeenStore:  seen,
	})

	report := runOnce(t, r)
	if s := report.Store(core.StoreSteam); s.Failed != 1 || s.Delivered != 0 {
		t.Fatalf("unexpected store report %+v", s)
	}
	var dispatchErr *core.DispatchError
	if !errors.As(report.Store(core.StoreSteam).Errors[0].Err, &dispatchErr) {
		t.Fatalf("expected DispatchError in report")
	}
	if report.Status != core.CycleStatusPartial {
		t.Fatalf("status=%s, want partial", report.Status)
	}

	ok, err := seen.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreSteam, ID: "a"})
	if err != nil || ok {
		t.Fatalf("HasSeen=%v, %v; want false after failed dispatch", ok, err)
	}

	delete(dispatcher.fail, "a")
	runOnce(t, r)
	if dispatcher.calls != 2 || len(dispatcher.sent) != 1 {
		t.Fatalf("expected retry on next cycle, calls=%d sent=%d", dispatcher.calls, len(dispatcher.sent))
	}
}

func TestSuccessfulDispatchIsDurable(t *testing.T) {
	dir := t.TempDir()
	seen := newFileStore(t, dir)
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{&stubCollector{name: "gog", store: core.StoreGOG, records: []core.GameRecord{game(core.StoreGOG, "alien_breed")}}},
		Dispatcher: &fakeDispatcher{},
		SeenStore:  seen,
	})
	runOnce(t, r)

	entry := core.SeenEntry{Store: core.StoreGOG, ID: "alien_breed"}
	if ok, _ := seen.HasSeen(context.Background(), entry); !ok {
		t.Fatalf("entry should be seen immediately")
	}
	reopened := newFileStore(t, dir)
	if ok, err := reopened.HasSeen(context.Background(), entry); err != nil || !ok {
		t.Fatalf("reopened HasSeen=%v, %v; want true", ok, err)
	}
}

func TestOnlyNewRecordsDispatched(t *testing.T) {
	seen := newFileStore(t, t.TempDir())
	if err := seen.MarkSeen(context.Background(), core.SeenEntry{Store: core.StoreEpic, ID: "b"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	dispatcher := &fakeDispatcher{}
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{&stubCollector{name: "epic", store: core.StoreEpic, records: []core.GameRecord{game(core.StoreEpic, "a"), game(core.StoreEpic, "b")}}},
		Dispatcher: dispatcher,
		SeenStore:  seen,
	})
	runOnce(t, r)
	if ids := dispatcher.sentIDs(); len(ids) != 1 || ids[0] != "Epic/a" {
		t.Fatalf("sent=%v, want [Epic/a]", ids)
	}
}

func TestCollectorFailureIsolated(t *testing.T) {
	seen := newFileStore(t, t.TempDir())
	dispatcher := &fakeDispatcher{}
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{
			&stubCollector{name: "epic_api", store: core.StoreEpic, err: errors.New("503")},
			&stubCollector{name: "epic_json", store: core.StoreEpic, records: []core.GameRecord{game(core.StoreEpic, "feed")}},
			&stubCollector{name: "gog_store", store: core.StoreGOG, panics: true},
			&stubCollector{name: "steam", store: core.StoreSteam, records: []core.GameRecord{game(core.StoreSteam, "1")}},
		},
		Dispatcher: dispatcher,
		SeenStore:  seen,
	})

	report := runOnce(t, r)
	if ids := dispatcher.sentIDs(); len(ids) != 2 {
		t.Fatalf("sent=%v, want the Epic feed game and the Steam game", ids)
	}
	gog := report.Store(core.StoreGOG)
	var collectorErr *core.CollectorError
	if len(gog.Errors) != 1 || !errors.As(gog.Errors[0].Err, &collectorErr) || collectorErr.Collector != "gog_store" {
		t.Fatalf("expected recovered panic as CollectorError, got %+v", gog.Errors)
	}
	if report.Store(core.StoreEpic).Delivered != 1 {
		t.Fatalf("epic report %+v", report.Store(core.StoreEpic))
	}
}

func TestPersistenceErrorSkipsOnlyThatStore(t *testing.T) {
	seen, err := dedupe.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := os.Mkdir(seen.Path("gog"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := seen.Load(context.Background()); err == nil {
		t.Fatalf("expected load to report the unreadable partition")
	}
	dispatcher := &fakeDispatcher{}
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{
			&stubCollector{name: "gog", store: core.StoreGOG, records: []core.GameRecord{game(core.StoreGOG, "x")}},
			&stubCollector{name: "steam", store: core.StoreSteam, records: []core.GameRecord{game(core.StoreSteam, "1")}},
		},
		Dispatcher: dispatcher,
		SeenStore:  seen,
	})

	report := runOnce(t, r)
	gog := report.Store(core.StoreGOG)
	if !gog.Skipped || gog.Delivered != 0 {
		t.Fatalf("gog should be skipped: %+v", gog)
	}
	var perr *core.PersistenceError
	if !errors.As(gog.Errors[0].Err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", gog.Errors[0].Err)
	}
	if ids := dispatcher.sentIDs(); len(ids) != 1 || ids[0] != "Steam/1" {
		t.Fatalf("sent=%v, want [Steam/1]", ids)
	}
}

func TestRunOnceIsNotReentrant(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{&stubCollector{name: "slow", store: core.StoreEpic, block: block, entered: entered}},
		Dispatcher: &fakeDispatcher{},
		SeenStore:  newFileStore(t, t.TempDir()),
	})

	done := make(chan error, 1)
	go func() {
		_, err := r.RunOnce(context.Background())
		done <- err
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("first cycle did not start")
	}

	if _, err := r.RunOnce(context.Background()); !errors.Is(err, core.ErrCycleInProgress) {
		t.Fatalf("err=%v, want ErrCycleInProgress", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}

func TestTriggerRunsInBackground(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	dispatcher := &fakeDispatcher{}
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{&stubCollector{name: "slow", store: core.StoreGOG, records: []core.GameRecord{game(core.StoreGOG, "a")}, block: block, entered: entered}},
		Dispatcher: dispatcher,
		SeenStore:  newFileStore(t, t.TempDir()),
	})
	if r.LastReport() != nil {
		t.Fatalf("expected no report before the first cycle")
	}

	if err := r.Trigger(context.Background(), "manual"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	// The guard is taken before Trigger returns, not when the goroutine starts.
	if err := r.Trigger(context.Background(), "manual"); !errors.Is(err, core.ErrCycleInProgress) {
		t.Fatalf("back-to-back trigger err=%v, want ErrCycleInProgress", err)
	}
	if !r.Running() {
		t.Fatalf("expected a running cycle")
	}
	if _, err := r.RunOnce(context.Background()); !errors.Is(err, core.ErrCycleInProgress) {
		t.Fatalf("run once err=%v, want ErrCycleInProgress", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("triggered cycle did not start")
	}

	close(block)
	r.Wait()
	last := r.LastReport()
	if last == nil || last.Delivered() != 1 {
		t.Fatalf("unexpected last report %+v", last)
	}
	if r.Running() {
		t.Fatalf("cycle still marked running")
	}
	if dispatcher.calls != 1 {
		t.Fatalf("dispatcher calls=%d, want 1", dispatcher.calls)
	}
}

func TestTriggerRefusedWhileStopping(t *testing.T) {
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{&stubCollector{name: "epic", store: core.StoreEpic}},
		Dispatcher: &fakeDispatcher{},
		SeenStore:  newFileStore(t, t.TempDir()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Trigger(ctx, "signal"); !errors.Is(err, core.ErrStopped) {
		t.Fatalf("cancelled ctx err=%v, want ErrStopped", err)
	}

	r.Wait()
	if err := r.Trigger(context.Background(), "api"); !errors.Is(err, core.ErrStopped) {
		t.Fatalf("after wait err=%v, want ErrStopped", err)
	}
	if r.Running() {
		t.Fatalf("refused trigger must not hold the guard")
	}
}

// lateDispatcher reports a delivery only after the store deadline has passed.
type lateDispatcher struct {
	delay time.Duration
}

func (d *lateDispatcher) Notify(ctx context.Context, record core.GameRecord) core.DispatchResult {
	time.Sleep(d.delay)
	return core.DispatchResult{Attempted: true, Delivered: true}
}

func TestDeliveryRecordedAfterStoreDeadline(t *testing.T) {
	backends := map[string]func(t *testing.T) dedupe.SeenStore{
		"file": func(t *testing.T) dedupe.SeenStore { return newFileStore(t, t.TempDir()) },
		"sqlite": func(t *testing.T) dedupe.SeenStore {
			store, err := dedupe.NewSQLiteStore(filepath.Join(t.TempDir(), "seen.db"), "")
			if err != nil {
				t.Fatalf("sqlite store: %v", err)
			}
			if err := store.Load(context.Background()); err != nil {
				t.Fatalf("sqlite load: %v", err)
			}
			return store
		},
		"badger": func(t *testing.T) dedupe.SeenStore {
			store, err := dedupe.NewBadgerStore(filepath.Join(t.TempDir(), "seen.badger"))
			if err != nil {
				t.Fatalf("badger store: %v", err)
			}
			return store
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			seen := open(t)
			t.Cleanup(func() { _ = seen.Close() })
			r := newRunner(t, &Flow{
				Collectors:   []core.Collector{&stubCollector{name: "search", store: core.StoreSteam, records: []core.GameRecord{game(core.StoreSteam, "570")}}},
				Dispatcher:   &lateDispatcher{delay: 300 * time.Millisecond},
				SeenStore:    seen,
				StoreTimeout: 100 * time.Millisecond,
			})

			report := runOnce(t, r)
			rep := report.Store(core.StoreSteam)
			if rep.Delivered != 1 || rep.Skipped {
				t.Fatalf("unexpected store report %+v", rep)
			}
			ok, err := seen.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreSteam, ID: "570"})
			if err != nil || !ok {
				t.Fatalf("delivered game not recorded: seen=%v err=%v", ok, err)
			}
		})
	}
}

func TestFiltersAndInCycleDuplicates(t *testing.T) {
	mobile := game(core.StoreEpic, "mobile")
	mobile.Platforms = []core.Platform{core.PlatformAndroid}
	dispatcher := &fakeDispatcher{}
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{
			&stubCollector{name: "api", store: core.StoreEpic, records: []core.GameRecord{game(core.StoreEpic, "pc"), mobile}},
			&stubCollector{name: "feed", store: core.StoreEpic, records: []core.GameRecord{game(core.StoreEpic, " pc ")}},
		},
		Filters:    []core.RecordFilter{filter.NewPlatformFilter(map[core.Platform]bool{core.PlatformPC: true})},
		Dispatcher: dispatcher,
		SeenStore:  newFileStore(t, t.TempDir()),
	})

	report := runOnce(t, r)
	if ids := dispatcher.sentIDs(); len(ids) != 1 || ids[0] != "Epic/pc" {
		t.Fatalf("sent=%v, want [Epic/pc]", ids)
	}
	if s := report.Store(core.StoreEpic); s.Collected != 2 || s.Filtered != 1 {
		t.Fatalf("epic report %+v", s)
	}
}

func TestUpcomingAndFreeAreSeparateEntries(t *testing.T) {
	seen := newFileStore(t, t.TempDir())
	upcoming := game(core.StoreEpic, "offer-1")
	upcoming.Upcoming = true
	collector := &stubCollector{name: "epic", store: core.StoreEpic, records: []core.GameRecord{upcoming}}
	dispatcher := &fakeDispatcher{}
	r := newRunner(t, &Flow{Collectors: []core.Collector{collector}, Dispatcher: dispatcher, SeenStore: seen})

	runOnce(t, r)
	collector.records = []core.GameRecord{game(core.StoreEpic, "offer-1")}
	runOnce(t, r)
	runOnce(t, r)

	if dispatcher.calls != 2 {
		t.Fatalf("dispatch calls=%d, want one upcoming and one free notification", dispatcher.calls)
	}
}

func TestRunOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRunner(t, &Flow{
		Collectors: []core.Collector{&stubCollector{name: "epic", store: core.StoreEpic}},
		Dispatcher: &fakeDispatcher{},
		SeenStore:  newFileStore(t, t.TempDir()),
	})
	report, err := r.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if report.Status != core.CycleStatusCancelled {
		t.Fatalf("status=%s", report.Status)
	}
}

func TestNewValidatesFlow(t *testing.T) {
	if _, err := New(nil, &Flow{SeenStore: newFileStore(t, t.TempDir())}); err == nil {
		t.Fatalf("expected missing dispatcher error")
	}
	if _, err := New(nil, &Flow{Dispatcher: &fakeDispatcher{}}); err == nil {
		t.Fatalf("expected missing seen store error")
	}
}
