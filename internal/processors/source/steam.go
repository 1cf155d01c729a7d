package source

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/bakkerme/free-game-notifier/internal/config"
	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/sources/steam"
)

const (
	steamAppURL        = "https://store.steampowered.com/app/"
	steamDefaultHeader = "https://cdn.cloudflare.steamstatic.com/steam/apps/753/header.jpg"
)

// SteamProcessor lists 100% discounted titles from the Steam store search and
// enriches each with appdetails and the review summary.
type SteamProcessor struct {
	base
	config  config.SteamSearchSource
	fetcher steam.Fetcher
}

func NewSteamProcessor(cfg *config.SteamSearchSource, fetcher steam.Fetcher, logger *slog.Logger) (*SteamProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("steam_search config is required")
	}
	return &SteamProcessor{
		base:    newBase("steam_search", core.StoreSteam, logger),
		config:  *cfg,
		fetcher: fetcher,
	}, nil
}

func (p *SteamProcessor) Validate() error {
	if p.fetcher == nil {
		return fmt.Errorf("steam fetcher is required")
	}
	return nil
}

func (p *SteamProcessor) Collect(ctx context.Context) ([]core.GameRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	items, err := p.fetcher.Search(ctx)
	if err != nil {
		return nil, err
	}

	enrich := true
	if p.config.Enrich != nil {
		enrich = *p.config.Enrich
	}

	var out uniqueRecords
	for _, item := range items {
		id := core.NormalizeID(item.AppID)
		if id == "" {
			continue
		}
		record := core.GameRecord{
			Store:     core.StoreSteam,
			ID:        id,
			Title:     item.Name,
			URL:       steamAppURL + id + "/",
			ImageURL:  steamDefaultHeader,
			Platforms: []core.Platform{core.PlatformPC},
			Collector: p.name,
		}
		if enrich && ctx.Err() == nil {
			p.enrich(ctx, &record)
		}
		out.add(record)
	}
	return out.records, nil
}

// enrich fills optional fields. Failures only cost detail.
func (p *SteamProcessor) enrich(ctx context.Context, record *core.GameRecord) {
	logger := p.logger.With("app_id", record.ID, "title", record.Title)

	details, err := p.fetcher.Details(ctx, record.ID)
	if err != nil {
		logger.Warn("steam appdetails unavailable", "error", err)
	} else {
		if details.ShortDescription != "" {
			record.Description = html.UnescapeString(details.ShortDescription)
		}
		if details.HeaderImage != "" {
			record.ImageURL = details.HeaderImage
		}
		record.Developer = strings.Join(details.Developers, ", ")
		record.Publisher = strings.Join(details.Publishers, ", ")
		record.OriginalPrice = details.OldPrice
		record.ReleaseDate = details.ReleaseDate
	}

	reviews, err := p.fetcher.Reviews(ctx, record.ID)
	if err != nil {
		logger.Warn("steam reviews unavailable", "error", err)
		return
	}
	record.Reviews = reviews
}
