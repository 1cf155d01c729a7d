package impl

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bakkerme/free-game-notifier/internal/httpx"
	"github.com/bakkerme/free-game-notifier/internal/sources/gog"
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

func (f *Fetcher) document(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := f.client.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse gog page: %w", err)
	}
	return doc, nil
}

func (f *Fetcher) StoreProducts(ctx context.Context, url string) ([]gog.Product, error) {
	doc, err := f.document(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("gog store: %w", err)
	}
	return ParseStoreProducts(doc, f.logger), nil
}

func (f *Fetcher) Giveaway(ctx context.Context, url string) (*gog.Product, error) {
	doc, err := f.document(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("gog giveaway: %w", err)
	}
	return ParseGiveaway(doc, f.logger), nil
}

// ParseStoreProducts reads the tiles of the paginated product grid. A page
// without the grid has no free titles.
func ParseStoreProducts(doc *goquery.Document, logger *slog.Logger) []gog.Product {
	grid := doc.Find(`div[selenium-id="paginatedProductsGrid"]`).First()
	if grid.Length() == 0 {
		logger.Debug("gog store grid not found")
		return nil
	}

	var out []gog.Product
	grid.Children().Each(func(_ int, tile *goquery.Selection) {
		title, ok := tile.Find(`div[selenium-id="productTileGameTitle"]`).First().Attr("title")
		title = strings.TrimSpace(title)
		if !ok || title == "" {
			return
		}
		href, ok := tile.Find("a.product-tile--grid").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			logger.Warn("gog tile without link, using home page", "title", title)
			href = gog.HomeURL
		}
		image := ""
		if srcset, ok := tile.Find("source[srcset]").First().Attr("srcset"); ok {
			image = firstSrc(srcset)
		}
		out = append(out, gog.Product{Title: title, URL: strings.TrimSpace(href), ImageURL: image})
	})
	return out
}

// ParseGiveaway reads the <giveaway> banner. Missing parts fall back to
// defaults so a partially rendered banner is still announced.
func ParseGiveaway(doc *goquery.Document, logger *slog.Logger) *gog.Product {
	banner := doc.Find("giveaway").First()
	if banner.Length() == 0 {
		return nil
	}

	title := "GOG Giveaway"
	if alt, ok := banner.Find("img[alt]").First().Attr("alt"); ok && strings.TrimSpace(alt) != "" {
		title = strings.TrimSpace(strings.Replace(alt, " giveaway", "", 1))
	} else {
		logger.Warn("gog giveaway without image alt text")
	}

	link := gog.HomeURL
	if href, ok := banner.Find(`a[selenium-id="giveawayOverlayLink"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		link = strings.TrimSpace(href)
	} else {
		logger.Warn("gog giveaway without overlay link", "title", title)
	}

	image := gog.DefaultGiveawayImage
	if srcset, ok := banner.Find("source[srcset]").First().Attr("srcset"); ok {
		if src := firstSrc(srcset); src != "" {
			image = src
		}
	}

	return &gog.Product{Title: title, URL: absolute(link), ImageURL: image}
}

// firstSrc returns the first URL of a srcset, normalised to https.
func firstSrc(srcset string) string {
	fields := strings.Fields(srcset)
	if len(fields) == 0 {
		return ""
	}
	return absolute(strings.TrimSuffix(fields[0], ","))
}

func absolute(u string) string {
	switch {
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return strings.TrimSuffix(gog.HomeURL, "/") + u
	}
	return u
}
