package impl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/httpx"
	"github.com/bakkerme/free-game-notifier/internal/sources/curated"
	"github.com/tidwall/gjson"
)

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

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]curated.Item, error) {
	body, err := f.client.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch curated feed: %w", err)
	}
	items, err := ParseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("curated feed %s: %w", url, err)
	}
	f.logger.Debug("curated feed loaded", "url", url, "items", len(items))
	return items, nil
}

// ParseFeed decodes a {"free_games": [...]} document. The whole feed is
// rejected when an entry is malformed or an id repeats.
func ParseFeed(body []byte) ([]curated.Item, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid json")
	}
	games := gjson.GetBytes(body, "free_games")
	if !games.IsArray() {
		return nil, fmt.Errorf("free_games missing")
	}

	var (
		items  []curated.Item
		seen   = map[string]bool{}
		parseE error
	)
	games.ForEach(func(key, value gjson.Result) bool {
		item, err := parseItem(value)
		if err != nil {
			parseE = fmt.Errorf("entry %d: %w", key.Int(), err)
			return false
		}
		if seen[item.ID] {
			parseE = fmt.Errorf("duplicate game id %q", item.ID)
			return false
		}
		seen[item.ID] = true
		items = append(items, item)
		return true
	})
	if parseE != nil {
		return nil, parseE
	}
	return items, nil
}

func parseItem(v gjson.Result) (curated.Item, error) {
	item := curated.Item{
		ID:          strings.TrimSpace(v.Get("id").String()),
		Name:        strings.TrimSpace(v.Get("game_name").String()),
		URL:         strings.TrimSpace(v.Get("game_url").String()),
		ImageLink:   strings.TrimSpace(v.Get("image_link").String()),
		Description: v.Get("description").String(),
		Developer:   strings.TrimSpace(v.Get("developer").String()),
		Platform:    strings.TrimSpace(v.Get("platform").String()),
	}
	if item.ID == "" {
		return item, fmt.Errorf("id is required")
	}
	if item.Name == "" {
		return item, fmt.Errorf("%s: game_name is required", item.ID)
	}
	if !strings.HasPrefix(item.URL, "http://") && !strings.HasPrefix(item.URL, "https://") {
		return item, fmt.Errorf("%s: game_url %q is not an http url", item.ID, item.URL)
	}

	var err error
	if item.StartDate, err = parseAware(v.Get("start_date").String()); err != nil {
		return item, fmt.Errorf("%s: start_date: %w", item.ID, err)
	}
	if item.EndDate, err = parseAware(v.Get("end_date").String()); err != nil {
		return item, fmt.Errorf("%s: end_date: %w", item.ID, err)
	}

	for _, inc := range v.Get("includes").Array() {
		if s := strings.TrimSpace(inc.String()); s != "" {
			item.Includes = append(item.Includes, s)
		}
	}
	v.Get("quick_links").ForEach(func(label, link gjson.Result) bool {
		item.QuickLinks = append(item.QuickLinks, curated.Link{Label: label.String(), URL: link.String()})
		return true
	})
	return item, nil
}

// parseAware accepts RFC 3339 timestamps only; a timestamp without an offset
// is ambiguous and rejected.
func parseAware(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be a timezone-aware RFC 3339 timestamp: %w", err)
	}
	return t.UTC(), nil
}
