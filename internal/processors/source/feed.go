package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bakkerme/free-game-notifier/internal/config"
	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/sources/curated"
)

// FeedProcessor reads a hand-maintained free_games JSON list.
type FeedProcessor struct {
	base
	config    config.FeedSource
	fetcher   curated.Fetcher
	platforms []core.Platform
}

func NewFeedProcessor(store core.Store, cfg *config.FeedSource, fetcher curated.Fetcher, logger *slog.Logger) (*FeedProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("feed config is required")
	}
	platforms := make([]core.Platform, 0, len(cfg.Platforms))
	for _, raw := range cfg.Platforms {
		platform, err := core.ParsePlatform(raw)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", cfg.Name, err)
		}
		platforms = append(platforms, platform)
	}
	name := cfg.Name
	if name == "" {
		name = "feed"
	}
	return &FeedProcessor{
		base:      newBase(name, store, logger),
		config:    *cfg,
		fetcher:   fetcher,
		platforms: platforms,
	}, nil
}

func (p *FeedProcessor) Validate() error {
	if !p.store.Valid() {
		return fmt.Errorf("feed %s: unknown store %q", p.name, p.store)
	}
	if strings.TrimSpace(p.config.URL) == "" {
		return fmt.Errorf("feed %s: url is required", p.name)
	}
	if p.fetcher == nil {
		return fmt.Errorf("feed %s: fetcher is required", p.name)
	}
	return nil
}

func (p *FeedProcessor) Collect(ctx context.Context) ([]core.GameRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	items, err := p.fetcher.Fetch(ctx, p.config.URL)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	var out uniqueRecords
	for _, item := range items {
		if item.EndDate.Before(now) {
			p.logger.Info("no longer free, skipping", "title", item.Name, "end", item.EndDate)
			continue
		}
		record := core.GameRecord{
			Store:       p.store,
			ID:          core.NormalizeID(item.ID),
			Title:       item.Name,
			URL:         item.URL,
			Description: item.Description,
			ImageURL:    item.ImageLink,
			Platforms:   p.recordPlatforms(item.Platform),
			Developer:   item.Developer,
			StartsAt:    item.StartDate,
			EndsAt:      item.EndDate,
			Collector:   p.name,
		}
		if item.Platform != "" {
			record.Title = fmt.Sprintf("%s (%s)", item.Name, item.Platform)
			record.Fields = append(record.Fields, core.Field{Name: "Platform", Value: item.Platform, Inline: true})
		}
		if len(item.Includes) > 0 {
			lines := make([]string, len(item.Includes))
			for i, inc := range item.Includes {
				lines[i] = "• " + inc
			}
			record.Fields = append(record.Fields, core.Field{Name: "Includes", Value: strings.Join(lines, "\n")})
		}
		if len(item.QuickLinks) > 0 {
			links := make([]string, len(item.QuickLinks))
			for i, link := range item.QuickLinks {
				links[i] = fmt.Sprintf("[%s](%s)", link.Label, link.URL)
			}
			record.Fields = append(record.Fields, core.Field{Name: "Links", Value: strings.Join(links, " • ")})
		}
		out.add(record)
	}
	return out.records, nil
}

// recordPlatforms uses the configured platforms, then the feed's free-text
// platform, then PC.
func (p *FeedProcessor) recordPlatforms(raw string) []core.Platform {
	if len(p.platforms) > 0 {
		return append([]core.Platform(nil), p.platforms...)
	}
	lower := strings.ToLower(raw)
	var out []core.Platform
	if strings.Contains(lower, "android") {
		out = append(out, core.PlatformAndroid)
	}
	if strings.Contains(lower, "ios") {
		out = append(out, core.PlatformIOS)
	}
	if len(out) == 0 {
		out = []core.Platform{core.PlatformPC}
	}
	return out
}
