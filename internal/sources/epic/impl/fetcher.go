package impl

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/httpx"
	"github.com/bakkerme/free-game-notifier/internal/sources/epic"
	"github.com/tidwall/gjson"
)

const DefaultURL = "https://store-site-backend-static.ak.epicgames.com/freeGamesPromotions"

type Fetcher struct {
	client *httpx.Client
	logger *slog.Logger
}

func NewFetcher(client *httpx.Client, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

func (f *Fetcher) Fetch(ctx context.Context, options epic.FetchOptions) ([]epic.Element, error) {
	url := options.URL
	if url == "" {
		url = DefaultURL
	}
	query := map[string]string{}
	if options.Country != "" {
		query["country"] = options.Country
		query["allowCountries"] = options.Country
	}
	if options.Locale != "" {
		query["locale"] = options.Locale
	}

	body, err := f.client.Get(ctx, url, query)
	if err != nil {
		return nil, fmt.Errorf("fetch epic promotions: %w", err)
	}
	return ParseElements(body, f.logger)
}

// ParseElements decodes the catalogue elements of a freeGamesPromotions response.
func ParseElements(body []byte, logger *slog.Logger) ([]epic.Element, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("epic promotions: response is not valid json")
	}
	elements := gjson.GetBytes(body, "data.Catalog.searchStore.elements")
	if !elements.IsArray() {
		return nil, fmt.Errorf("epic promotions: data.Catalog.searchStore.elements missing")
	}

	out := make([]epic.Element, 0, len(elements.Array()))
	elements.ForEach(func(_, raw gjson.Result) bool {
		title := html.UnescapeString(raw.Get("title").String())
		el := epic.Element{
			ID:                     raw.Get("id").String(),
			Namespace:              raw.Get("namespace").String(),
			Title:                  title,
			Description:            raw.Get("description").String(),
			Seller:                 raw.Get("seller.name").String(),
			ProductSlug:            cleanSlug(raw.Get("productSlug").String()),
			URLSlug:                cleanSlug(raw.Get("urlSlug").String()),
			DiscountPrice:          raw.Get("price.totalPrice.discountPrice").Int(),
			OriginalPrice:          raw.Get("price.totalPrice.originalPrice").Int(),
			FormattedOriginalPrice: raw.Get("price.totalPrice.fmtPrice.originalPrice").String(),
		}
		for _, m := range raw.Get("offerMappings.#.pageSlug").Array() {
			if slug := cleanSlug(m.String()); slug != "" {
				el.OfferSlugs = append(el.OfferSlugs, slug)
			}
		}
		for _, m := range raw.Get("catalogNs.mappings.#.pageSlug").Array() {
			if slug := cleanSlug(m.String()); slug != "" {
				el.CatalogSlugs = append(el.CatalogSlugs, slug)
			}
		}
		for _, img := range raw.Get("keyImages").Array() {
			el.KeyImages = append(el.KeyImages, epic.KeyImage{
				Type: img.Get("type").String(),
				URL:  img.Get("url").String(),
			})
		}
		el.Offers = append(el.Offers, parseOffers(raw.Get("promotions.promotionalOffers"), false, title, logger)...)
		el.Offers = append(el.Offers, parseOffers(raw.Get("promotions.upcomingPromotionalOffers"), true, title, logger)...)
		out = append(out, el)
		return true
	})
	return out, nil
}

func parseOffers(groups gjson.Result, upcoming bool, title string, logger *slog.Logger) []epic.Offer {
	var out []epic.Offer
	for _, group := range groups.Array() {
		for _, raw := range group.Get("promotionalOffers").Array() {
			offer := epic.Offer{Upcoming: upcoming}
			offer.Start = parseTime(raw.Get("startDate").String(), title, logger)
			offer.End = parseTime(raw.Get("endDate").String(), title, logger)
			if pct := raw.Get("discountSetting.discountPercentage"); pct.Exists() {
				offer.HasDiscount = true
				offer.DiscountPercentage = int(pct.Int())
			}
			out = append(out, offer)
		}
	}
	return out
}

func parseTime(raw, title string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if logger != nil {
			logger.Warn("unable to parse epic promotion date", "title", title, "value", raw, "error", err)
		}
		return time.Time{}
	}
	return t.UTC()
}

// cleanSlug drops the empty and "[]" placeholders the API sometimes returns.
func cleanSlug(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "[]" {
		return ""
	}
	return slug
}
