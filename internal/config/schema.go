package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFeedBaseURL    = "https://thelovinator1.github.io/discord-free-game-notifier"
	DefaultEpicAPIURL     = "https://store-site-backend-static.ak.epicgames.com/freeGamesPromotions"
	DefaultSteamSearchURL = "https://store.steampowered.com/search/results/?maxprice=free&specials=1&category1=994%2C998%2C21&json=1"
	DefaultGOGStoreURL    = "https://www.gog.com/en/games?priceRange=0,0&discounted=true"
	DefaultGOGFrontURL    = "https://www.gog.com/"

	DefaultHTTPTimeout  = 30 * time.Second
	DefaultStoreTimeout = 2 * time.Minute
)

// webhookPrefixes are the URL prefixes Discord hands out for incoming webhooks.
var webhookPrefixes = []string{
	"https://discord.com/api/webhooks/",
	"https://discordapp.com/api/webhooks/",
	"https://canary.discord.com/api/webhooks/",
	"https://ptb.discord.com/api/webhooks/",
}

// NotifierDocument represents the top-level structure of a notifier.yaml file
type NotifierDocument struct {
	Notifier Notifier `yaml:"notifier"`
}

// Notifier contains the complete notifier configuration
type Notifier struct {
	Name           string                  `yaml:"name,omitempty"`
	LogLevel       string                  `yaml:"log_level,omitempty"`
	DataDir        string                  `yaml:"data_dir,omitempty"`
	MaxConcurrency int                     `yaml:"max_concurrency,omitempty"`
	StoreTimeout   Duration                `yaml:"store_timeout,omitempty"`
	Trigger        []TriggerConfig         `yaml:"trigger,omitempty"`
	Webhooks       WebhookConfig           `yaml:"webhooks"`
	Stores         map[string]*StoreConfig `yaml:"stores,omitempty"`
	Platforms      []string                `yaml:"platforms,omitempty"`
	Filters        []FilterConfig          `yaml:"filters,omitempty"`
	SeenStore      SeenStoreConfig         `yaml:"seen_store,omitempty"`
	HTTP           HTTPConfig              `yaml:"http,omitempty"`
	Status         StatusConfig            `yaml:"status,omitempty"`
}

// TriggerConfig wraps different trigger types
type TriggerConfig struct {
	Cron *CronTrigger `yaml:"cron,omitempty"`
}

// CronTrigger defines a scheduled trigger
type CronTrigger struct {
	Schedule   string `yaml:"schedule"`
	Timezone   string `yaml:"timezone,omitempty"`
	RunAtStart *bool  `yaml:"run_at_start,omitempty"`
}

// WebhookConfig holds the default Discord webhook and optional per-store ones.
type WebhookConfig struct {
	Default string            `yaml:"default,omitempty"`
	Stores  map[string]string `yaml:"stores,omitempty"`
}

// StoreConfig enables a store and lists the collectors that feed it.
// An empty Sources list selects the built-in collectors for the store.
type StoreConfig struct {
	Enabled *bool          `yaml:"enabled,omitempty"`
	Sources []SourceConfig `yaml:"sources,omitempty"`
}

// SourceConfig wraps different collector types
type SourceConfig struct {
	EpicAPI     *EpicAPISource     `yaml:"epic_api,omitempty"`
	SteamSearch *SteamSearchSource `yaml:"steam_search,omitempty"`
	GOGStore    *GOGStoreSource    `yaml:"gog_store,omitempty"`
	GOGGiveaway *GOGGiveawaySource `yaml:"gog_giveaway,omitempty"`
	Feed        *FeedSource        `yaml:"feed,omitempty"`
}

// EpicAPISource reads the Epic Games Store free promotions endpoint.
type EpicAPISource struct {
	URL             string               `yaml:"url,omitempty"`
	Country         string               `yaml:"country,omitempty"`
	Locale          string               `yaml:"locale,omitempty"`
	IncludeUpcoming *bool                `yaml:"include_upcoming,omitempty"`
	Snapshot        *core.SnapshotConfig `yaml:"snapshot,omitempty"`
}

// SteamSearchSource reads the Steam store search for 100% discounted titles.
type SteamSearchSource struct {
	URL       string               `yaml:"url,omitempty"`
	DetailURL string               `yaml:"detail_url,omitempty"`
	ReviewURL string               `yaml:"review_url,omitempty"`
	Enrich    *bool                `yaml:"enrich,omitempty"`
	Snapshot  *core.SnapshotConfig `yaml:"snapshot,omitempty"`
}

// GOGStoreSource scrapes the GOG catalogue grid filtered to free discounted titles.
type GOGStoreSource struct {
	URL      string               `yaml:"url,omitempty"`
	Snapshot *core.SnapshotConfig `yaml:"snapshot,omitempty"`
}

// GOGGiveawaySource scrapes the giveaway banner on the GOG front page.
type GOGGiveawaySource struct {
	URL      string               `yaml:"url,omitempty"`
	Snapshot *core.SnapshotConfig `yaml:"snapshot,omitempty"`
}

// FeedSource reads a curated JSON list of free games.
type FeedSource struct {
	Name      string               `yaml:"name"`
	URL       string               `yaml:"url"`
	Platforms []string             `yaml:"platforms,omitempty"`
	Snapshot  *core.SnapshotConfig `yaml:"snapshot,omitempty"`
}

// FilterConfig wraps different record filter types
type FilterConfig struct {
	Rule *RuleFilter `yaml:"rule,omitempty"`
}

// RuleFilter defines an expression evaluated against each record.
type RuleFilter struct {
	Name   string `yaml:"name"`
	Rule   string `yaml:"rule"`
	Result string `yaml:"result"`
}

// SeenStoreConfig selects the seen-set backend: "file" (default), "sqlite" or
// "badger". DSN is the sqlite DSN or the badger directory.
type SeenStoreConfig struct {
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	Table  string `yaml:"table,omitempty"`
}

// StatusConfig enables the status API. An empty Listen address disables it.
type StatusConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// HTTPConfig tunes the shared HTTP client used by collectors and the webhook sender.
type HTTPConfig struct {
	Timeout   Duration `yaml:"timeout,omitempty"`
	UserAgent string   `yaml:"user_agent,omitempty"`
	Retries   int      `yaml:"retries,omitempty"`
}

// Load reads the YAML document at path. An empty path yields the default document.
func Load(path string) (*NotifierDocument, error) {
	doc := &NotifierDocument{}
	path = strings.TrimSpace(path)
	if path == "" {
		return doc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return doc, nil
}

// ApplyEnv overlays non-empty environment settings onto the document.
func (d *NotifierDocument) ApplyEnv(env EnvConfig) {
	n := &d.Notifier
	if env.DataDir != "" {
		n.DataDir = env.DataDir
	}
	if env.LogLevel != "" {
		n.LogLevel = env.LogLevel
	}
	if env.WebhookURL != "" {
		n.Webhooks.Default = env.WebhookURL
	}
	for key, url := range env.StoreWebhooks {
		if n.Webhooks.Stores == nil {
			n.Webhooks.Stores = map[string]string{}
		}
		n.Webhooks.Stores[key] = url
	}
	if len(env.Stores) > 0 {
		enabled := map[string]bool{}
		for _, raw := range env.Stores {
			if store, err := core.ParseStore(raw); err == nil {
				enabled[store.Key()] = true
			} else {
				// keep the bad name so Validate reports it
				enabled[strings.ToLower(strings.TrimSpace(raw))] = true
			}
		}
		if n.Stores == nil {
			n.Stores = map[string]*StoreConfig{}
		}
		for key := range enabled {
			if n.Stores[key] == nil {
				n.Stores[key] = &StoreConfig{}
			}
		}
		for _, store := range core.Stores {
			if n.Stores[store.Key()] == nil {
				n.Stores[store.Key()] = &StoreConfig{}
			}
		}
		for key, sc := range n.Stores {
			on := enabled[key]
			sc.Enabled = &on
		}
	}
	if len(env.Platforms) > 0 {
		n.Platforms = env.Platforms
	}
	if env.Schedule != "" || env.Timezone != "" {
		trigger := CronTrigger{Schedule: DefaultSchedule}
		if len(n.Trigger) > 0 && n.Trigger[0].Cron != nil {
			trigger = *n.Trigger[0].Cron
		}
		if env.Schedule != "" {
			trigger.Schedule = env.Schedule
		}
		if env.Timezone != "" {
			trigger.Timezone = env.Timezone
		}
		n.Trigger = []TriggerConfig{{Cron: &trigger}}
	}
	if env.HTTPTimeout > 0 {
		n.HTTP.Timeout = Duration(env.HTTPTimeout)
	}
	if env.UserAgent != "" {
		n.HTTP.UserAgent = env.UserAgent
	}
	if env.StoreTimeout > 0 {
		n.StoreTimeout = Duration(env.StoreTimeout)
	}
	if env.SeenStoreDriver != "" {
		n.SeenStore.Driver = env.SeenStoreDriver
	}
	if env.SeenStoreDSN != "" {
		n.SeenStore.DSN = env.SeenStoreDSN
	}
	if env.StatusAddr != "" {
		n.Status.Listen = env.StatusAddr
	}
}

// ApplyDefaults fills every unset field with its built-in value.
func (d *NotifierDocument) ApplyDefaults() {
	n := &d.Notifier
	if n.Name == "" {
		n.Name = "free-game-notifier"
	}
	if n.LogLevel == "" {
		n.LogLevel = "info"
	}
	if n.DataDir == "" {
		n.DataDir = DefaultDataDir()
	}
	if n.MaxConcurrency <= 0 {
		n.MaxConcurrency = 1
	}
	if n.StoreTimeout <= 0 {
		n.StoreTimeout = Duration(DefaultStoreTimeout)
	}
	if len(n.Trigger) == 0 {
		n.Trigger = []TriggerConfig{{Cron: &CronTrigger{Schedule: DefaultSchedule}}}
	}
	if n.Stores == nil {
		n.Stores = map[string]*StoreConfig{}
	}
	for _, store := range core.Stores {
		sc, ok := n.Stores[store.Key()]
		if !ok || sc == nil {
			sc = &StoreConfig{}
			n.Stores[store.Key()] = sc
		}
		if len(sc.Sources) == 0 {
			sc.Sources = DefaultSources(store)
		}
	}
	if n.SeenStore.Driver == "" {
		n.SeenStore.Driver = "file"
	}
	if n.HTTP.Timeout <= 0 {
		n.HTTP.Timeout = Duration(DefaultHTTPTimeout)
	}
	if n.HTTP.UserAgent == "" {
		n.HTTP.UserAgent = DefaultUserAgent
	}
	if n.HTTP.Retries <= 0 {
		n.HTTP.Retries = 3
	}
}

// DefaultSources returns the collectors used for a store when none are configured.
func DefaultSources(store core.Store) []SourceConfig {
	switch store {
	case core.StoreEpic:
		return []SourceConfig{
			{EpicAPI: &EpicAPISource{}},
			{Feed: &FeedSource{Name: "epic_json", URL: DefaultFeedBaseURL + "/epic.json"}},
			{Feed: &FeedSource{Name: "epic_mobile_json", URL: DefaultFeedBaseURL + "/epic_mobile.json", Platforms: []string{"android", "ios"}}},
		}
	case core.StoreSteam:
		return []SourceConfig{
			{SteamSearch: &SteamSearchSource{}},
			{Feed: &FeedSource{Name: "steam_json", URL: DefaultFeedBaseURL + "/steam.json"}},
		}
	case core.StoreGOG:
		return []SourceConfig{
			{GOGStore: &GOGStoreSource{}},
			{GOGGiveaway: &GOGGiveawaySource{}},
		}
	case core.StoreUbisoft:
		return []SourceConfig{
			{Feed: &FeedSource{Name: "ubisoft_json", URL: DefaultFeedBaseURL + "/ubisoft.json"}},
		}
	}
	return nil
}

// StoreEnabled reports whether the store should be checked. Stores are enabled
// unless explicitly turned off.
func (n *Notifier) StoreEnabled(store core.Store) bool {
	sc, ok := n.Stores[store.Key()]
	if !ok || sc == nil || sc.Enabled == nil {
		return true
	}
	return *sc.Enabled
}

// PlatformSet returns the configured platform filter. An empty set allows every platform.
func (n *Notifier) PlatformSet() map[core.Platform]bool {
	out := map[core.Platform]bool{}
	for _, raw := range n.Platforms {
		if p, err := core.ParsePlatform(raw); err == nil {
			out[p] = true
		}
	}
	return out
}

// WebhooksFor returns the destinations for a store: the store-specific webhook
// and the default one, deduplicated.
func (n *Notifier) WebhooksFor(store core.Store) []string {
	var out []string
	if url := strings.TrimSpace(n.Webhooks.Stores[store.Key()]); url != "" {
		out = append(out, url)
	}
	if url := strings.TrimSpace(n.Webhooks.Default); url != "" && (len(out) == 0 || out[0] != url) {
		out = append(out, url)
	}
	return out
}

// Validate performs validation on the notifier document
func (d *NotifierDocument) Validate() error {
	n := &d.Notifier

	if n.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0")
	}

	if n.Webhooks.Default == "" && len(n.Webhooks.Stores) == 0 {
		return fmt.Errorf("at least one webhook is required (webhooks.default or WEBHOOK_URL)")
	}
	if n.Webhooks.Default != "" {
		if err := ValidateWebhookURL(n.Webhooks.Default); err != nil {
			return fmt.Errorf("webhooks.default: %w", err)
		}
	}
	for key, url := range n.Webhooks.Stores {
		if _, err := core.ParseStore(key); err != nil {
			return fmt.Errorf("webhooks.stores: %w", err)
		}
		if url == "" {
			continue
		}
		if err := ValidateWebhookURL(url); err != nil {
			return fmt.Errorf("webhooks.stores.%s: %w", key, err)
		}
	}

	for i, trigger := range n.Trigger {
		if trigger.Cron == nil {
			return fmt.Errorf("trigger %d: unsupported trigger type", i)
		}
		if trigger.Cron.Schedule == "" {
			return fmt.Errorf("trigger %d: cron schedule is required", i)
		}
		if _, err := cron.ParseStandard(trigger.Cron.Schedule); err != nil {
			return fmt.Errorf("trigger %d: invalid cron schedule: %w", i, err)
		}
		if trigger.Cron.Timezone != "" {
			if _, err := time.LoadLocation(trigger.Cron.Timezone); err != nil {
				return fmt.Errorf("trigger %d: invalid timezone: %w", i, err)
			}
		}
	}

	for key, sc := range n.Stores {
		store, err := core.ParseStore(key)
		if err != nil {
			return fmt.Errorf("stores: %w", err)
		}
		if sc == nil {
			continue
		}
		for i, source := range sc.Sources {
			label := fmt.Sprintf("stores.%s source %d", key, i)
			if err := validateSource(label, store, source); err != nil {
				return err
			}
		}
	}

	for _, raw := range n.Platforms {
		if _, err := core.ParsePlatform(raw); err != nil {
			return fmt.Errorf("platforms: %w", err)
		}
	}

	for i, filter := range n.Filters {
		if filter.Rule == nil {
			return fmt.Errorf("filter %d: unsupported filter type", i)
		}
		if filter.Rule.Name == "" || filter.Rule.Rule == "" {
			return fmt.Errorf("filter %d: rule name and expression are required", i)
		}
		if filter.Rule.Result != "pass" && filter.Rule.Result != "drop" {
			return fmt.Errorf("filter %d: result must be 'pass' or 'drop'", i)
		}
	}

	switch n.SeenStore.Driver {
	case "", "file":
	case "sqlite", "badger":
		if n.SeenStore.DSN == "" && n.DataDir == "" {
			return fmt.Errorf("seen_store: %s requires a dsn or data_dir", n.SeenStore.Driver)
		}
	default:
		return fmt.Errorf("seen_store: unsupported driver %q (expected file, sqlite or badger)", n.SeenStore.Driver)
	}

	if n.HTTP.Retries < 0 {
		return fmt.Errorf("http: retries must be >= 0")
	}

	return nil
}

// ValidateWebhookURL checks that url looks like a Discord webhook.
func ValidateWebhookURL(url string) error {
	url = strings.TrimSpace(url)
	for _, prefix := range webhookPrefixes {
		if strings.HasPrefix(url, prefix) && len(url) > len(prefix) {
			return nil
		}
	}
	return fmt.Errorf("webhook url must start with one of %s", strings.Join(webhookPrefixes, ", "))
}

func validateSource(label string, store core.Store, source SourceConfig) error {
	set := 0
	var snapshot *core.SnapshotConfig
	if source.EpicAPI != nil {
		set++
		snapshot = source.EpicAPI.Snapshot
		if store != core.StoreEpic {
			return fmt.Errorf("%s: epic_api belongs to the epic store", label)
		}
	}
	if source.SteamSearch != nil {
		set++
		snapshot = source.SteamSearch.Snapshot
		if store != core.StoreSteam {
			return fmt.Errorf("%s: steam_search belongs to the steam store", label)
		}
	}
	if source.GOGStore != nil {
		set++
		snapshot = source.GOGStore.Snapshot
		if store != core.StoreGOG {
			return fmt.Errorf("%s: gog_store belongs to the gog store", label)
		}
	}
	if source.GOGGiveaway != nil {
		set++
		snapshot = source.GOGGiveaway.Snapshot
		if store != core.StoreGOG {
			return fmt.Errorf("%s: gog_giveaway belongs to the gog store", label)
		}
	}
	if source.Feed != nil {
		set++
		snapshot = source.Feed.Snapshot
		if source.Feed.Name == "" || source.Feed.URL == "" {
			return fmt.Errorf("%s: feed name and url are required", label)
		}
		for _, raw := range source.Feed.Platforms {
			if _, err := core.ParsePlatform(raw); err != nil {
				return fmt.Errorf("%s: %w", label, err)
			}
		}
	}
	if set != 1 {
		return fmt.Errorf("%s: exactly one collector type is required", label)
	}
	return validateSnapshotConfig(label, snapshot)
}

func validateSnapshotConfig(label string, cfg *core.SnapshotConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.Snapshot && cfg.Restore {
		return fmt.Errorf("%s: snapshot and restore cannot both be true", label)
	}
	if (cfg.Snapshot || cfg.Restore) && cfg.Path == "" {
		return fmt.Errorf("%s: snapshot path is required", label)
	}
	return nil
}
