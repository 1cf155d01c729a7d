package mock

import (
	"context"

	"github.com/bakkerme/free-game-notifier/internal/sources/gog"
)

type Fetcher struct {
	Products        []gog.Product
	StoreErr        error
	GiveawayProduct *gog.Product
	GiveawayErr     error
}

func (f *Fetcher) StoreProducts(ctx context.Context, url string) ([]gog.Product, error) {
	_ = ctx
	_ = url
	if f.StoreErr != nil {
		return nil, f.StoreErr
	}
	return f.Products, nil
}

func (f *Fetcher) Giveaway(ctx context.Context, url string) (*gog.Product, error) {
	_ = ctx
	_ = url
	if f.GiveawayErr != nil {
		return nil, f.GiveawayErr
	}
	return f.GiveawayProduct, nil
}
