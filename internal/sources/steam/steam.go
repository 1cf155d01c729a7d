package steam

import "context"

// SearchItem is one result of the store search.
type SearchItem struct {
	AppID string
	Name  string
}

// Details is the subset of appdetails used for notifications.
type Details struct {
	ShortDescription string
	HeaderImage      string
	Developers       []string
	Publishers       []string
	OldPrice         string
	ReleaseDate      string
}

// Endpoints overrides the Steam URLs. Empty fields use the public store.
type Endpoints struct {
	SearchURL string
	DetailURL string
	ReviewURL string
}

// Fetcher talks to the Steam store.
type Fetcher interface {
	Search(ctx context.Context) ([]SearchItem, error)
	Details(ctx context.Context, appID string) (Details, error)
	// Reviews returns the review summary ("Very Positive") or "" when unknown.
	Reviews(ctx context.Context, appID string) (string, error)
}
