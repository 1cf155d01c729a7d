package source

import (
	"log/slog"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

// base carries what every collector shares.
type base struct {
	name   string
	store  core.Store
	logger *slog.Logger
	now    func() time.Time
}

func newBase(name string, store core.Store, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{name: name, store: store, logger: logger.With("collector", name, "store", string(store)), now: time.Now}
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Store() core.Store {
	return b.store
}

// SetClock replaces the time source used to decide whether a promotion is
// active. Tests pin it to a fixed instant.
func (b *base) SetClock(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// uniqueRecords drops repeated (id, upcoming) pairs, keeping the first.
type uniqueRecords struct {
	seen    map[core.SeenEntry]bool
	records []core.GameRecord
}

func (u *uniqueRecords) add(record core.GameRecord) bool {
	if u.seen == nil {
		u.seen = map[core.SeenEntry]bool{}
	}
	entry := record.SeenEntry()
	if u.seen[entry] {
		return false
	}
	u.seen[entry] = true
	u.records = append(u.records, record)
	return true
}
