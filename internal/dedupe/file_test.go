package dedupe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

func newTestFileStore(t *testing.T, dir string) *FileStore {
	t.Helper()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("failed to init file store: %v", err)
	}
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return store
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := newTestFileStore(t, t.TempDir())

	seen, err := store.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreSteam, ID: "1"})
	if err != nil {
		t.Fatalf("has seen failed: %v", err)
	}
	if seen {
		t.Fatalf("expected empty set")
	}
}

func TestFileStoreEmptyFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gog.txt"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := newTestFileStore(t, dir)

	seen, err := store.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreGOG, ID: "x"})
	if err != nil {
		t.Fatalf("has seen failed: %v", err)
	}
	if seen {
		t.Fatalf("expected empty set")
	}
}

func TestFileStoreMarkPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store := newTestFileStore(t, dir)

	entry := core.SeenEntry{Store: core.StoreEpic, ID: "Tom &amp; Jerry"}
	if err := store.MarkSeen(context.Background(), entry); err != nil {
		t.Fatalf("mark seen failed: %v", err)
	}

	reopened := newTestFileStore(t, dir)
	seen, err := reopened.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreEpic, ID: "Tom & Jerry"})
	if err != nil {
		t.Fatalf("has seen failed: %v", err)
	}
	if !seen {
		t.Fatalf("expected entry to survive reopen")
	}

	data, err := os.ReadFile(filepath.Join(dir, "epic.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "Tom & Jerry\n" {
		t.Fatalf("unexpected file contents %q", string(data))
	}
}

func TestFileStoreMarkSeenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := newTestFileStore(t, dir)

	entry := core.SeenEntry{Store: core.StoreSteam, ID: "42"}
	for i := 0; i < 3; i++ {
		if err := store.MarkSeen(context.Background(), entry); err != nil {
			t.Fatalf("mark seen failed: %v", err)
		}
	}
	data, err := os.ReadFile(store.Path("steam"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(data), "42\n"); got != 1 {
		t.Fatalf("expected one line, got %d in %q", got, string(data))
	}
}

func TestFileStoreUpcomingIsSeparatePartition(t *testing.T) {
	dir := t.TempDir()
	store := newTestFileStore(t, dir)

	if err := store.MarkSeen(context.Background(), core.SeenEntry{Store: core.StoreEpic, ID: "game", Upcoming: true}); err != nil {
		t.Fatalf("mark seen failed: %v", err)
	}
	seen, err := store.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreEpic, ID: "game"})
	if err != nil {
		t.Fatalf("has seen failed: %v", err)
	}
	if seen {
		t.Fatalf("upcoming mark should not hide the free announcement")
	}
	if _, err := os.Stat(filepath.Join(dir, "epic_upcoming.txt")); err != nil {
		t.Fatalf("expected epic_upcoming.txt: %v", err)
	}
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	content := "good-one\n\xff\xfe\n\n  good-two  \nbad\x00line\n"
	if err := os.WriteFile(filepath.Join(dir, "ubisoft.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := newTestFileStore(t, dir)

	for _, id := range []string{"good-one", "good-two"} {
		seen, err := store.HasSeen(context.Background(), core.SeenEntry{Store: core.StoreUbisoft, ID: id})
		if err != nil {
			t.Fatalf("has seen failed: %v", err)
		}
		if !seen {
			t.Fatalf("expected %q to be loaded", id)
		}
	}
}

func TestFileStoreRejectsInvalidIDs(t *testing.T) {
	store := newTestFileStore(t, t.TempDir())

	for _, id := range []string{"", "   ", "a\nb"} {
		err := store.MarkSeen(context.Background(), core.SeenEntry{Store: core.StoreSteam, ID: id})
		var perr *core.PersistenceError
		if !errors.As(err, &perr) {
			t.Fatalf("MarkSeen(%q) expected PersistenceError, got %v", id, err)
		}
	}
}

func TestFileStoreUnreadablePartitionIsPersistenceError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory-as-file trick is unix specific")
	}
	dir := t.TempDir()
	// A directory where the file should be cannot be opened for appending.
	if err := os.Mkdir(filepath.Join(dir, "gog.txt"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("failed to init file store: %v", err)
	}

	err = store.MarkSeen(context.Background(), core.SeenEntry{Store: core.StoreGOG, ID: "x"})
	var perr *core.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Partition != "gog" {
		t.Fatalf("partition = %q, want gog", perr.Partition)
	}
}

func TestFilterIsNew(t *testing.T) {
	store := newTestFileStore(t, t.TempDir())
	filter := NewFilter(store)

	record := core.GameRecord{Store: core.StoreSteam, ID: " 730 "}
	isNew, err := filter.IsNew(context.Background(), record)
	if err != nil {
		t.Fatalf("is new failed: %v", err)
	}
	if !isNew {
		t.Fatalf("expected new record")
	}
	if err := store.MarkSeen(context.Background(), record.SeenEntry()); err != nil {
		t.Fatalf("mark seen failed: %v", err)
	}
	isNew, err = filter.IsNew(context.Background(), record)
	if err != nil {
		t.Fatalf("is new failed: %v", err)
	}
	if isNew {
		t.Fatalf("expected seen record")
	}
}
