package epic

import (
	"context"
	"time"
)

// FetchOptions controls the promotions request.
type FetchOptions struct {
	URL     string
	Country string
	Locale  string
}

// KeyImage is one of the artwork variants attached to an offer.
type KeyImage struct {
	Type string
	URL  string
}

// Offer is a single promotional window. Upcoming offers come from
// upcomingPromotionalOffers.
type Offer struct {
	Start              time.Time
	End                time.Time
	DiscountPercentage int
	HasDiscount        bool
	Upcoming           bool
}

// Element is one entry of the promotions catalogue.
type Element struct {
	ID            string
	Namespace     string
	Title         string
	Description   string
	Seller        string
	ProductSlug   string
	URLSlug       string
	OfferSlugs    []string
	CatalogSlugs  []string
	KeyImages     []KeyImage
	DiscountPrice int64
	OriginalPrice int64
	// FormattedOriginalPrice is the display price ("$19.99"), empty when unknown.
	FormattedOriginalPrice string
	Offers                 []Offer
}

// Fetcher retrieves the Epic free promotions catalogue.
type Fetcher interface {
	Fetch(ctx context.Context, options FetchOptions) ([]Element, error)
}
