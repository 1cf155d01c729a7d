package mock

import (
	"context"

	"github.com/bakkerme/free-game-notifier/internal/sources/steam"
)

type Fetcher struct {
	Items        []steam.SearchItem
	SearchErr    error
	DetailsByApp map[string]steam.Details
	DetailsErr   map[string]error
	ReviewsByApp map[string]string
	ReviewsErr   map[string]error
}

func (f *Fetcher) Search(ctx context.Context) ([]steam.SearchItem, error) {
	_ = ctx
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	return f.Items, nil
}

func (f *Fetcher) Details(ctx context.Context, appID string) (steam.Details, error) {
	_ = ctx
	if err, ok := f.DetailsErr[appID]; ok {
		return steam.Details{}, err
	}
	return f.DetailsByApp[appID], nil
}

func (f *Fetcher) Reviews(ctx context.Context, appID string) (string, error) {
	_ = ctx
	if err, ok := f.ReviewsErr[appID]; ok {
		return "", err
	}
	return f.ReviewsByApp[appID], nil
}
