package curated

import (
	"context"
	"time"
)

// Link is one labelled entry of a feed item's quick_links object. Feed order is kept.
type Link struct {
	Label string
	URL   string
}

// Item is one entry of a curated free_games list.
type Item struct {
	ID          string
	Name        string
	URL         string
	StartDate   time.Time
	EndDate     time.Time
	ImageLink   string
	Description string
	Developer   string
	// Platform is free text such as "Android", "iOS" or "Android & iOS".
	Platform   string
	Includes   []string
	QuickLinks []Link
}

// Fetcher loads a curated feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]Item, error)
}
