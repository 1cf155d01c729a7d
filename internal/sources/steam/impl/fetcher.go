package impl

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bakkerme/free-game-notifier/internal/httpx"
	"github.com/bakkerme/free-game-notifier/internal/sources/steam"
	"github.com/tidwall/gjson"
)

const (
	DefaultSearchURL = "https://store.steampowered.com/search/results/?maxprice=free&specials=1&category1=994%2C998%2C21&json=1"
	DefaultDetailURL = "https://store.steampowered.com/api/appdetails"
	DefaultReviewURL = "https://store.steampowered.com/appreviews/"
)

var appIDPattern = regexp.MustCompile(`/apps/(\d+)/`)

type Fetcher struct {
	client    *httpx.Client
	endpoints steam.Endpoints
	logger    *slog.Logger
}

func NewFetcher(client *httpx.Client, endpoints steam.Endpoints, logger *slog.Logger) *Fetcher {
	if endpoints.SearchURL == "" {
		endpoints.SearchURL = DefaultSearchURL
	}
	if endpoints.DetailURL == "" {
		endpoints.DetailURL = DefaultDetailURL
	}
	if endpoints.ReviewURL == "" {
		endpoints.ReviewURL = DefaultReviewURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, endpoints: endpoints, logger: logger}
}

func (f *Fetcher) Search(ctx context.Context) ([]steam.SearchItem, error) {
	body, err := f.client.Get(ctx, f.endpoints.SearchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("steam search: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("steam search: response is not valid json")
	}
	items := gjson.GetBytes(body, "items")
	if !items.IsArray() {
		return nil, fmt.Errorf("steam search: items missing")
	}

	var out []steam.SearchItem
	for _, item := range items.Array() {
		name := html.UnescapeString(item.Get("name").String())
		logo := item.Get("logo").String()
		m := appIDPattern.FindStringSubmatch(logo)
		if m == nil {
			f.logger.Warn("steam search item without app id", "name", name, "logo", logo)
			continue
		}
		out = append(out, steam.SearchItem{AppID: m[1], Name: name})
	}
	return out, nil
}

func (f *Fetcher) Details(ctx context.Context, appID string) (steam.Details, error) {
	body, err := f.client.Get(ctx, f.endpoints.DetailURL, map[string]string{
		"appids":  appID,
		"l":       "english",
		"filters": "basic,short_description,developers,publishers,price_overview,release_date",
	})
	if err != nil {
		return steam.Details{}, fmt.Errorf("steam appdetails %s: %w", appID, err)
	}
	app := gjson.GetBytes(body, appID)
	if !app.Get("success").Bool() {
		return steam.Details{}, fmt.Errorf("steam appdetails %s: not successful", appID)
	}
	data := app.Get("data")
	details := steam.Details{
		ShortDescription: html.UnescapeString(data.Get("short_description").String()),
		HeaderImage:      data.Get("header_image").String(),
		OldPrice:         data.Get("price_overview.initial_formatted").String(),
		ReleaseDate:      data.Get("release_date.date").String(),
	}
	for _, d := range data.Get("developers").Array() {
		if v := strings.TrimSpace(d.String()); v != "" {
			details.Developers = append(details.Developers, v)
		}
	}
	for _, p := range data.Get("publishers").Array() {
		if v := strings.TrimSpace(p.String()); v != "" {
			details.Publishers = append(details.Publishers, v)
		}
	}
	return details, nil
}

func (f *Fetcher) Reviews(ctx context.Context, appID string) (string, error) {
	url := strings.TrimRight(f.endpoints.ReviewURL, "/") + "/" + appID
	body, err := f.client.Get(ctx, url, map[string]string{
		"json":          "1",
		"language":      "all",
		"num_per_page":  "0",
		"purchase_type": "all",
	})
	if err != nil {
		return "", fmt.Errorf("steam reviews %s: %w", appID, err)
	}
	res := gjson.GetManyBytes(body, "success", "query_summary.review_score_desc")
	if res[0].Int() != 1 {
		return "", nil
	}
	return res[1].String(), nil
}
