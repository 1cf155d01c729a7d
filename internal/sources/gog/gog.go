package gog

import "context"

const (
	DefaultGiveawayImage = "https://images.gog.com/86843ada19050958a1aecf7de9c7403876f74d53230a5a96d7e615c1348ba6a9.webp"
	HomeURL              = "https://www.gog.com/"
)

// Product is a free title scraped from a GOG page.
type Product struct {
	Title    string
	URL      string
	ImageURL string
}

// Fetcher scrapes GOG store pages.
type Fetcher interface {
	// StoreProducts returns the tiles of the catalogue grid at url.
	StoreProducts(ctx context.Context, url string) ([]Product, error)
	// Giveaway returns the front page giveaway at url, or nil when there is none.
	Giveaway(ctx context.Context, url string) (*Product, error)
}
