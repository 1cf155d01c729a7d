package dedupe

import (
	"context"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

// SeenStore tracks games that were already announced, partitioned by store.
type SeenStore interface {
	// Load reads the persisted state. Missing or empty state is an empty set.
	Load(ctx context.Context) error
	// HasSeen reports whether the entry was marked before.
	HasSeen(ctx context.Context, entry core.SeenEntry) (bool, error)
	// MarkSeen records the entry durably before returning. Marking twice is a no-op.
	MarkSeen(ctx context.Context, entry core.SeenEntry) error
	Close() error
}

// Filter decides whether a record still needs a notification.
type Filter struct {
	store SeenStore
}

func NewFilter(store SeenStore) *Filter {
	return &Filter{store: store}
}

// IsNew reports whether the record's (store, id) pair has not been notified yet.
func (f *Filter) IsNew(ctx context.Context, record core.GameRecord) (bool, error) {
	seen, err := f.store.HasSeen(ctx, record.SeenEntry())
	if err != nil {
		return false, err
	}
	return !seen, nil
}
