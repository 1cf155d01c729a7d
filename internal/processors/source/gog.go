package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bakkerme/free-game-notifier/internal/config"
	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/sources/gog"
)

const (
	gogClaimURL      = "https://www.gog.com/giveaway/claim"
	gogSubscriptions = "https://www.gog.com/en/account/settings/subscriptions"
)

// GOGStoreProcessor reads the catalogue grid filtered to free discounted titles.
type GOGStoreProcessor struct {
	base
	config  config.GOGStoreSource
	fetcher gog.Fetcher
}

func NewGOGStoreProcessor(cfg *config.GOGStoreSource, fetcher gog.Fetcher, logger *slog.Logger) (*GOGStoreProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gog_store config is required")
	}
	return &GOGStoreProcessor{
		base:    newBase("gog_store", core.StoreGOG, logger),
		config:  *cfg,
		fetcher: fetcher,
	}, nil
}

func (p *GOGStoreProcessor) Validate() error {
	if p.fetcher == nil {
		return fmt.Errorf("gog fetcher is required")
	}
	return nil
}

func (p *GOGStoreProcessor) Collect(ctx context.Context) ([]core.GameRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	target := p.config.URL
	if target == "" {
		target = config.DefaultGOGStoreURL
	}
	products, err := p.fetcher.StoreProducts(ctx, target)
	if err != nil {
		return nil, err
	}

	var out uniqueRecords
	for _, product := range products {
		record := gogRecord(product, p.name)
		record.Description = fmt.Sprintf("[Click here to claim %s!](%s)", product.Title, product.URL)
		out.add(record)
	}
	return out.records, nil
}

// GOGGiveawayProcessor reads the giveaway banner on the front page.
type GOGGiveawayProcessor struct {
	base
	config  config.GOGGiveawaySource
	fetcher gog.Fetcher
}

func NewGOGGiveawayProcessor(cfg *config.GOGGiveawaySource, fetcher gog.Fetcher, logger *slog.Logger) (*GOGGiveawayProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gog_giveaway config is required")
	}
	return &GOGGiveawayProcessor{
		base:    newBase("gog_giveaway", core.StoreGOG, logger),
		config:  *cfg,
		fetcher: fetcher,
	}, nil
}

func (p *GOGGiveawayProcessor) Validate() error {
	if p.fetcher == nil {
		return fmt.Errorf("gog fetcher is required")
	}
	return nil
}

func (p *GOGGiveawayProcessor) Collect(ctx context.Context) ([]core.GameRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	target := p.config.URL
	if target == "" {
		target = config.DefaultGOGFrontURL
	}
	product, err := p.fetcher.Giveaway(ctx, target)
	if err != nil {
		return nil, err
	}
	if product == nil {
		p.logger.Debug("no gog giveaway running")
		return nil, nil
	}

	record := gogRecord(*product, p.name)
	record.Description = fmt.Sprintf("[Click here to claim %s!](%s)\n[Click here to unsubscribe from emails!](%s)",
		product.Title, gogClaimURL, gogSubscriptions)
	return []core.GameRecord{record}, nil
}

func gogRecord(product gog.Product, collector string) core.GameRecord {
	return core.GameRecord{
		Store:     core.StoreGOG,
		ID:        GOGID(product.URL, product.Title),
		Title:     product.Title,
		URL:       product.URL,
		ImageURL:  product.ImageURL,
		Platforms: []core.Platform{core.PlatformPC},
		Collector: collector,
	}
}

// GOGID keys a GOG title by the slug of its /game/<slug> URL so the store grid
// and the giveaway banner agree. Without a product URL the lowercased title
// with spaces replaced by underscores is used.
func GOGID(productURL, title string) string {
	if u, err := url.Parse(productURL); err == nil {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := 0; i+1 < len(parts); i++ {
			if parts[i] == "game" && parts[i+1] != "" {
				return strings.ToLower(parts[i+1])
			}
		}
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "_")
}
