package filter

import (
	"context"
	"sort"
	"strings"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

// PlatformFilter keeps records claimable on at least one allowed platform.
// An empty allow-list keeps everything.
type PlatformFilter struct {
	allowed map[core.Platform]bool
}

func NewPlatformFilter(allowed map[core.Platform]bool) *PlatformFilter {
	copied := make(map[core.Platform]bool, len(allowed))
	for p, ok := range allowed {
		if ok {
			copied[p] = true
		}
	}
	return &PlatformFilter{allowed: copied}
}

func (f *PlatformFilter) Name() string {
	names := make([]string, 0, len(f.allowed))
	for p := range f.allowed {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return "platforms(" + strings.Join(names, ",") + ")"
}

func (f *PlatformFilter) Keep(ctx context.Context, record core.GameRecord) (bool, error) {
	_ = ctx
	return record.OnPlatform(f.allowed), nil
}
