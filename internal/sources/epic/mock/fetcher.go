package mock

import (
	"context"

	"github.com/bakkerme/free-game-notifier/internal/sources/epic"
)

type Fetcher struct {
	Elements []epic.Element
	Err      error
	Calls    int
}

func (f *Fetcher) Fetch(ctx context.Context, options epic.FetchOptions) ([]epic.Element, error) {
	_ = ctx
	_ = options
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Elements, nil
}
