package core

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Store identifies one of the supported storefronts.
type Store string

const (
	StoreSteam   Store = "Steam"
	StoreEpic    Store = "Epic"
	StoreGOG     Store = "GOG"
	StoreUbisoft Store = "Ubisoft"
)

// Stores lists every supported store in processing order.
var Stores = []Store{StoreEpic, StoreSteam, StoreGOG, StoreUbisoft}

// Key returns the lowercase name used for config keys and seen-set file names.
func (s Store) Key() string {
	return strings.ToLower(string(s))
}

func (s Store) Valid() bool {
	for _, known := range Stores {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStore accepts a store name in any case ("steam", "GOG", "Ubisoft").
func ParseStore(raw string) (Store, error) {
	raw = strings.TrimSpace(raw)
	for _, store := range Stores {
		if strings.EqualFold(raw, string(store)) {
			return store, nil
		}
	}
	return "", fmt.Errorf("unknown store %q", raw)
}

// Platform is the device family a free title is claimable on.
type Platform string

const (
	PlatformPC      Platform = "pc"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

var Platforms = []Platform{PlatformPC, PlatformAndroid, PlatformIOS}

func ParsePlatform(raw string) (Platform, error) {
	raw = strings.TrimSpace(raw)
	for _, platform := range Platforms {
		if strings.EqualFold(raw, string(platform)) {
			return platform, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", raw)
}

// Field is a labelled value rendered as an embed field.
type Field struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Inline bool   `json:"inline,omitempty" yaml:"inline,omitempty"`
}

// GameRecord describes one title a collector found to be free (or about to be).
// Records are passed by value and never modified after a collector returns them.
type GameRecord struct {
	Store         Store      `json:"store" yaml:"store"`
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	URL           string     `json:"url" yaml:"url"`
	Description   string     `json:"description,omitempty" yaml:"description,omitempty"`
	ImageURL      string     `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Platforms     []Platform `json:"platforms,omitempty" yaml:"platforms,omitempty"`
	Developer     string     `json:"developer,omitempty" yaml:"developer,omitempty"`
	Publisher     string     `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Seller        string     `json:"seller,omitempty" yaml:"seller,omitempty"`
	OriginalPrice string     `json:"original_price,omitempty" yaml:"original_price,omitempty"`
	ReleaseDate   string     `json:"release_date,omitempty" yaml:"release_date,omitempty"`
	Reviews       string     `json:"reviews,omitempty" yaml:"reviews,omitempty"`
	StartsAt      time.Time  `json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt        time.Time  `json:"ends_at,omitempty" yaml:"ends_at,omitempty"`
	Upcoming      bool       `json:"upcoming,omitempty" yaml:"upcoming,omitempty"`
	Fields        []Field    `json:"fields,omitempty" yaml:"fields,omitempty"`
	Collector     string     `json:"collector,omitempty" yaml:"collector,omitempty"`
}

// SeenEntry returns the dedup key for the record.
func (r GameRecord) SeenEntry() SeenEntry {
	return SeenEntry{Store: r.Store, ID: NormalizeID(r.ID), Upcoming: r.Upcoming}
}

// OnPlatform reports whether the record is claimable on any of the given platforms.
// A record without platforms is treated as a PC title.
func (r GameRecord) OnPlatform(platforms map[Platform]bool) bool {
	if len(platforms) == 0 {
		return true
	}
	if len(r.Platforms) == 0 {
		return platforms[PlatformPC]
	}
	for _, p := range r.Platforms {
		if platforms[p] {
			return true
		}
	}
	return false
}

// SeenEntry is one durable "already notified" marker.
type SeenEntry struct {
	Store    Store
	ID       string
	Upcoming bool
}

// Partition names the seen-set partition ("epic", "epic_upcoming", ...).
func (e SeenEntry) Partition() string {
	if e.Upcoming {
		return e.Store.Key() + "_upcoming"
	}
	return e.Store.Key()
}

func (e SeenEntry) String() string {
	return e.Partition() + "/" + e.ID
}

// NormalizeID canonicalises a store-assigned identifier so the same id written
// with or without HTML entities or surrounding whitespace maps to one key.
func NormalizeID(id string) string {
	return strings.TrimSpace(html.UnescapeString(strings.TrimSpace(id)))
}

// TargetResult is the outcome of posting to a single webhook.
type TargetResult struct {
	Target    string
	Delivered bool
	Err       error
}

// DispatchResult is the outcome of notifying one record. Delivered is true when
// at least one webhook accepted the message.
type DispatchResult struct {
	Attempted bool
	Delivered bool
	Targets   []TargetResult
	Err       error
}
