package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/config"
	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/sources/epic"
)

const (
	epicProductURL  = "https://www.epicgames.com/en-US/p/"
	epicStoreURL    = "https://store.epicgames.com/"
	epicTestSeller  = "Epic Dev Test Account"
	epicMysteryGame = "Mystery Game"
)

// EpicProcessor turns the Epic promotions catalogue into current and upcoming
// free game records.
type EpicProcessor struct {
	base
	config  config.EpicAPISource
	fetcher epic.Fetcher
}

func NewEpicProcessor(cfg *config.EpicAPISource, fetcher epic.Fetcher, logger *slog.Logger) (*EpicProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("epic_api config is required")
	}
	return &EpicProcessor{
		base:    newBase("epic_api", core.StoreEpic, logger),
		config:  *cfg,
		fetcher: fetcher,
	}, nil
}

func (p *EpicProcessor) Validate() error {
	if p.fetcher == nil {
		return fmt.Errorf("epic fetcher is required")
	}
	return nil
}

func (p *EpicProcessor) Collect(ctx context.Context) ([]core.GameRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	elements, err := p.fetcher.Fetch(ctx, epic.FetchOptions{
		URL:     p.config.URL,
		Country: p.config.Country,
		Locale:  p.config.Locale,
	})
	if err != nil {
		return nil, err
	}

	includeUpcoming := true
	if p.config.IncludeUpcoming != nil {
		includeUpcoming = *p.config.IncludeUpcoming
	}

	now := p.now().UTC()
	var out uniqueRecords
	for _, el := range elements {
		logger := p.logger.With("title", el.Title)
		if el.Title == epicMysteryGame {
			logger.Debug("mystery game, skipping")
			continue
		}
		id := core.NormalizeID(el.ID)
		if id == "" {
			logger.Warn("epic element without id, skipping")
			continue
		}

		start, end := epicWindow(el)
		free, upcoming := classifyEpic(el, start, now)
		switch {
		case free:
			if !(end.After(now) || (end.IsZero() && !start.IsZero())) {
				logger.Info("promotion has ended, skipping", "end", end)
				continue
			}
		case upcoming:
			if !includeUpcoming {
				continue
			}
		default:
			logger.Debug("not a free or upcoming promotion")
			continue
		}

		record := core.GameRecord{
			Store:         core.StoreEpic,
			ID:            id,
			Title:         el.Title,
			URL:           epicURL(el),
			Description:   el.Description,
			ImageURL:      epicImage(el),
			Platforms:     []core.Platform{core.PlatformPC},
			OriginalPrice: el.FormattedOriginalPrice,
			StartsAt:      start,
			EndsAt:        end,
			Upcoming:      upcoming,
			Collector:     p.name,
		}
		if record.Description == "" {
			record.Description = "No description found"
		}
		if el.Seller != "" && el.Seller != epicTestSeller {
			record.Seller = el.Seller
		}
		if out.add(record) {
			logger.Info("epic candidate", "id", id, "upcoming", upcoming)
		}
	}
	return out.records, nil
}

// epicWindow returns the earliest start and latest end across every current
// and upcoming offer. Unknown bounds are zero.
func epicWindow(el epic.Element) (start, end time.Time) {
	for _, offer := range el.Offers {
		if !offer.Start.IsZero() && (start.IsZero() || offer.Start.Before(start)) {
			start = offer.Start
		}
		if offer.End.After(end) {
			end = offer.End
		}
	}
	return start, end
}

func classifyEpic(el epic.Element, start, now time.Time) (free, upcoming bool) {
	started := start.IsZero() || !start.After(now)
	if el.DiscountPrice == 0 && el.OriginalPrice > 0 && started {
		return true, false
	}
	for _, offer := range el.Offers {
		if !offer.HasDiscount || offer.DiscountPercentage != 0 {
			continue
		}
		if offer.Start.After(now) {
			return false, true
		}
		return true, false
	}
	return false, false
}

// epicURL prefers the product slug, then the offer page slug, then the url
// slug, then the catalogue page slug. Some slugs carry a trailing /home that
// leads to a broken page.
func epicURL(el epic.Element) string {
	slug := el.ProductSlug
	if slug == "" {
		for _, s := range el.OfferSlugs {
			if s != "" {
				slug = s
			}
		}
	}
	if slug == "" {
		slug = el.URLSlug
	}
	if slug == "" {
		for _, s := range el.CatalogSlugs {
			if s != "" {
				slug = s
				break
			}
		}
	}
	if slug == "" {
		return epicStoreURL
	}
	return strings.TrimSuffix(epicProductURL+strings.Trim(slug, " "), "/home")
}

func epicImage(el epic.Element) string {
	image := ""
	for _, k := range el.KeyImages {
		if k.Type == "DieselStoreFrontWide" || k.Type == "Thumbnail" {
			image = k.URL
		}
	}
	if image != "" {
		return image
	}
	for _, k := range el.KeyImages {
		if k.Type == "OfferImageWide" {
			image = k.URL
		}
	}
	return image
}
