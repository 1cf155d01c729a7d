package dedupe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

const maxLineBytes = 64 * 1024

// FileStore keeps one plain-text file per partition under dir, one id per line.
// Writes append and fsync before MarkSeen returns.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	sets     map[string]map[string]struct{}
	degraded map[string]error
}

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("seen store directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create seen store directory: %w", err)
	}
	return &FileStore{
		dir:      dir,
		logger:   logger,
		sets:     map[string]map[string]struct{}{},
		degraded: map[string]error{},
	}, nil
}

// Path returns the file backing a partition.
func (s *FileStore) Path(partition string) string {
	return filepath.Join(s.dir, partition+".txt")
}

// Load reads every known partition. Each unreadable partition is reported in
// the joined error and stays degraded until a later read succeeds.
func (s *FileStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, store := range core.Stores {
		for _, upcoming := range []bool{false, true} {
			if err := ctx.Err(); err != nil {
				return err
			}
			partition := core.SeenEntry{Store: store, Upcoming: upcoming}.Partition()
			if err := s.loadLocked(partition); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *FileStore) HasSeen(ctx context.Context, entry core.SeenEntry) (bool, error) {
	_ = ctx
	id := core.NormalizeID(entry.ID)
	if id == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	partition := entry.Partition()
	if _, ok := s.sets[partition]; !ok || s.degraded[partition] != nil {
		if err := s.loadLocked(partition); err != nil {
			return false, err
		}
	}
	_, ok := s.sets[partition][id]
	return ok, nil
}

func (s *FileStore) MarkSeen(ctx context.Context, entry core.SeenEntry) error {
	_ = ctx
	id := core.NormalizeID(entry.ID)
	partition := entry.Partition()
	if err := validateID(id); err != nil {
		return &core.PersistenceError{Partition: partition, Op: "mark", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[partition]
	if !ok {
		if err := s.loadLocked(partition); err != nil {
			s.logger.Warn("marking entry in unreadable partition", "partition", partition, "error", err)
		}
		set = s.sets[partition]
	}
	if _, exists := set[id]; exists {
		return nil
	}
	// Set before the write: a failed write must not cause a re-announce in this process.
	set[id] = struct{}{}
	return s.appendLocked(partition, id)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) loadLocked(partition string) error {
	path := s.Path(partition)
	ids := map[string]struct{}{}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.sets[partition] = ids
			delete(s.degraded, partition)
			return nil
		}
		if _, ok := s.sets[partition]; !ok {
			s.sets[partition] = ids
		}
		perr := &core.PersistenceError{Partition: partition, Op: "load", Path: path, Err: err}
		s.degraded[partition] = perr
		return perr
	}
	defer f.Close()

	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if !utf8.ValidString(line) || strings.ContainsRune(line, 0) {
			skipped++
			continue
		}
		id := core.NormalizeID(line)
		if id == "" {
			continue
		}
		ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		// Keep what was readable; a damaged tail is not fatal.
		s.logger.Warn("seen store file is damaged, keeping readable entries", "partition", partition, "path", path, "error", err, "entries", len(ids))
	}
	if skipped > 0 {
		s.logger.Warn("skipped corrupt lines in seen store file", "partition", partition, "path", path, "skipped", skipped)
	}

	s.sets[partition] = ids
	delete(s.degraded, partition)
	return nil
}

func (s *FileStore) appendLocked(partition, id string) error {
	path := s.Path(partition)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &core.PersistenceError{Partition: partition, Op: "mark", Path: path, Err: err}
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		_ = f.Close()
		return &core.PersistenceError{Partition: partition, Op: "mark", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return &core.PersistenceError{Partition: partition, Op: "mark", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &core.PersistenceError{Partition: partition, Op: "mark", Path: path, Err: err}
	}
	return nil
}

// each loads every partition and calls fn for each stored id.
func (s *FileStore) each(ctx context.Context, fn func(partition, id string) error) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for partition, ids := range s.sets {
		for id := range ids {
			if err := fn(partition, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("id %q contains a line break", id)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("id is not valid utf-8")
	}
	return nil
}
