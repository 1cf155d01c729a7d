package dedupe

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

func newBadgerStore(t *testing.T, dir string) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("failed to open badger store: %v", err)
	}
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return store
}

func TestBadgerStoreTracksSeenIDsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seen.badger")
	ctx := context.Background()
	entry := core.SeenEntry{Store: core.StoreEpic, ID: "offer-1"}

	store := newBadgerStore(t, dir)
	seen, err := store.HasSeen(ctx, entry)
	if err != nil || seen {
		t.Fatalf("fresh store: seen=%v err=%v", seen, err)
	}
	if err := store.MarkSeen(ctx, entry); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if err := store.MarkSeen(ctx, entry); err != nil {
		t.Fatalf("second mark seen: %v", err)
	}
	if n, err := store.Count("epic"); err != nil || n != 1 {
		t.Fatalf("count=%d err=%v, want 1", n, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := newBadgerStore(t, dir)
	t.Cleanup(func() { _ = reopened.Close() })
	seen, err = reopened.HasSeen(ctx, entry)
	if err != nil || !seen {
		t.Fatalf("after reopen: seen=%v err=%v", seen, err)
	}
	upcoming := core.SeenEntry{Store: core.StoreEpic, ID: "offer-1", Upcoming: true}
	if seen, _ := reopened.HasSeen(ctx, upcoming); seen {
		t.Fatalf("upcoming partition must be separate")
	}
}

func TestBadgerStoreRejectsBadIDs(t *testing.T) {
	store := newBadgerStore(t, t.TempDir())
	t.Cleanup(func() { _ = store.Close() })

	var perr *core.PersistenceError
	err := store.MarkSeen(context.Background(), core.SeenEntry{Store: core.StoreGOG, ID: "a\nb"})
	if !errors.As(err, &perr) {
		t.Fatalf("MarkSeen with a line break: expected PersistenceError, got %v", err)
	}
	if perr.Op != "mark" || perr.Partition != "gog" {
		t.Fatalf("unexpected error fields: %+v", perr)
	}
	_, err = store.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreGOG})
	if !errors.As(err, &perr) {
		t.Fatalf("HasSeen with an empty id: expected PersistenceError, got %v", err)
	}
	if perr.Op != "read" {
		t.Fatalf("op = %q, want read", perr.Op)
	}
}

func TestBadgerStoreCancelledContextIsPersistenceError(t *testing.T) {
	store := newBadgerStore(t, t.TempDir())
	t.Cleanup(func() { _ = store.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entry := core.SeenEntry{Store: core.StoreSteam, ID: "10"}

	var perr *core.PersistenceError
	err := store.MarkSeen(ctx, entry)
	if !errors.As(err, &perr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("MarkSeen: expected PersistenceError wrapping context.Canceled, got %v", err)
	}
	_, err = store.HasSeen(ctx, entry)
	if !errors.As(err, &perr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("HasSeen: expected PersistenceError wrapping context.Canceled, got %v", err)
	}
}

func TestBadgerStoreImportsFileStore(t *testing.T) {
	dir := t.TempDir()
	files, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("failed to init file store: %v", err)
	}
	for _, entry := range []core.SeenEntry{
		{Store: core.StoreSteam, ID: "10"},
		{Store: core.StoreEpic, ID: "soon", Upcoming: true},
	} {
		if err := files.MarkSeen(context.Background(), entry); err != nil {
			t.Fatalf("mark seen failed: %v", err)
		}
	}

	store := newBadgerStore(t, filepath.Join(dir, "seen.badger"))
	t.Cleanup(func() { _ = store.Close() })
	n, err := store.Import(context.Background(), files)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported %d ids, want 2", n)
	}
	seen, err := store.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreEpic, ID: "soon", Upcoming: true})
	if err != nil || !seen {
		t.Fatalf("imported upcoming id: seen=%v err=%v", seen, err)
	}
}
