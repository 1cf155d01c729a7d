package mock

import (
	"context"

	"github.com/bakkerme/free-game-notifier/internal/sources/curated"
)

type Fetcher struct {
	Items []curated.Item
	Err   error
	URLs  []string
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]curated.Item, error) {
	_ = ctx
	f.URLs = append(f.URLs, url)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Items, nil
}
