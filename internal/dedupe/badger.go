package dedupe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "seen/"

// BadgerStore keeps the seen set in an embedded badger database, one key per
// (partition, id). Writes are synced before MarkSeen returns.
type BadgerStore struct {
	db  *badger.DB
	dir string
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("badger directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create badger directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithSyncWrites(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, dir: dir}, nil
}

func badgerKey(partition, id string) []byte {
	return []byte(badgerKeyPrefix + partition + "/" + id)
}

// Load only checks ctx; badger opens its state in NewBadgerStore.
func (s *BadgerStore) Load(ctx context.Context) error {
	return ctx.Err()
}

func (s *BadgerStore) HasSeen(ctx context.Context, entry core.SeenEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &core.PersistenceError{Partition: entry.Partition(), Op: "read", Path: s.dir, Err: err}
	}
	id := core.NormalizeID(entry.ID)
	if err := validateID(id); err != nil {
		return false, &core.PersistenceError{Partition: entry.Partition(), Op: "read", Path: s.dir, Err: err}
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(entry.Partition(), id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &core.PersistenceError{Partition: entry.Partition(), Op: "read", Path: s.dir, Err: err}
	}
	return true, nil
}

func (s *BadgerStore) MarkSeen(ctx context.Context, entry core.SeenEntry) error {
	if err := ctx.Err(); err != nil {
		return &core.PersistenceError{Partition: entry.Partition(), Op: "mark", Path: s.dir, Err: err}
	}
	id := core.NormalizeID(entry.ID)
	if err := validateID(id); err != nil {
		return &core.PersistenceError{Partition: entry.Partition(), Op: "mark", Path: s.dir, Err: err}
	}
	key := badgerKey(entry.Partition(), id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return &core.PersistenceError{Partition: entry.Partition(), Op: "mark", Path: s.dir, Err: err}
	}
	return nil
}

// Count returns the number of ids stored for a partition.
func (s *BadgerStore) Count(partition string) (int, error) {
	prefix := []byte(badgerKeyPrefix + partition + "/")
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Import copies every id of a file-backed installation into the database.
func (s *BadgerStore) Import(ctx context.Context, files *FileStore) (int, error) {
	now := []byte(time.Now().UTC().Format(time.RFC3339))
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	imported := 0
	err := files.each(ctx, func(partition, id string) error {
		if err := wb.Set(badgerKey(partition, id), now); err != nil {
			return err
		}
		imported++
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush badger import: %w", err)
	}
	return imported, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
