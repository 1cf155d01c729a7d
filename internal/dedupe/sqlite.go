package dedupe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
	_ "modernc.org/sqlite"
)

const (
	defaultSQLiteTable = "seen_games"
)

// SQLiteStore is an alternative SeenStore backed by a single SQLite table
// keyed by (partition, id).
type SQLiteStore struct {
	db         *sql.DB
	dsn        string
	table      string
	tableIdent string
}

func NewSQLiteStore(dsn string, table string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if table == "" {
		table = defaultSQLiteTable
	}
	tableIdent, err := quoteSQLiteIdentifier(table)
	if err != nil {
		return nil, err
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{
		db:         db,
		dsn:        dsn,
		table:      table,
		tableIdent: tableIdent,
	}, nil
}

// Load creates the table when needed. Existing rows are queried on demand.
func (s *SQLiteStore) Load(ctx context.Context) error {
	if err := s.ensureSchema(ctx); err != nil {
		return &core.PersistenceError{Partition: "*", Op: "load", Path: s.dsn, Err: err}
	}
	return nil
}

func (s *SQLiteStore) HasSeen(ctx context.Context, entry core.SeenEntry) (bool, error) {
	id := core.NormalizeID(entry.ID)
	if id == "" {
		return false, nil
	}
	var seenAt time.Time
	query := fmt.Sprintf("SELECT seen_at FROM %s WHERE partition = ? AND id = ?", s.tableIdent)
	err := s.db.QueryRowContext(ctx, query, entry.Partition(), id).Scan(&seenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, &core.PersistenceError{Partition: entry.Partition(), Op: "load", Path: s.dsn, Err: err}
	}
	return true, nil
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, entry core.SeenEntry) error {
	id := core.NormalizeID(entry.ID)
	if err := validateID(id); err != nil {
		return &core.PersistenceError{Partition: entry.Partition(), Op: "mark", Err: err}
	}
	_, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf("INSERT INTO %s (partition, id, seen_at) VALUES (?, ?, ?) ON CONFLICT(partition, id) DO NOTHING", s.tableIdent),
		entry.Partition(),
		id,
		time.Now().UTC(),
	)
	if err != nil {
		return &core.PersistenceError{Partition: entry.Partition(), Op: "mark", Path: s.dsn, Err: err}
	}
	return nil
}

// Import copies every id of a file-backed partition into the table. It is used
// when switching an existing installation to the sqlite backend.
func (s *SQLiteStore) Import(ctx context.Context, files *FileStore) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(
		ctx,
		fmt.Sprintf("INSERT INTO %s (partition, id, seen_at) VALUES (?, ?, ?) ON CONFLICT(partition, id) DO NOTHING", s.tableIdent),
	)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	imported := 0
	err = files.each(ctx, func(partition, id string) error {
		if _, err := stmt.ExecContext(ctx, partition, id, now); err != nil {
			return err
		}
		imported++
		return nil
	})
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return imported, tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	if s.table == "" {
		return fmt.Errorf("sqlite table name is required")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		partition TEXT NOT NULL,
		id TEXT NOT NULL,
		seen_at TIMESTAMP NOT NULL,
		PRIMARY KEY (partition, id)
	)`, s.tableIdent)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sqlite table: %w", err)
	}
	return nil
}

func ensureSQLiteDir(dsn string) error {
	if strings.HasPrefix(dsn, "file:") {
		dsn = strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexRune(dsn, '?'); idx >= 0 {
			dsn = dsn[:idx]
		}
	}
	if dsn == "" || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var sqliteIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteSQLiteIdentifier(identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("sqlite table name is required")
	}
	if !sqliteIdentifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("sqlite table name %q must match %s", identifier, sqliteIdentifierPattern.String())
	}
	return `"` + identifier + `"`, nil
}
