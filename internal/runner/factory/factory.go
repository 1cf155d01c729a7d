package factory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/bakkerme/free-game-notifier/internal/config"
	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/dedupe"
	"github.com/bakkerme/free-game-notifier/internal/httpx"
	"github.com/bakkerme/free-game-notifier/internal/outputs/discord"
	"github.com/bakkerme/free-game-notifier/internal/outputs/discord/webhook"
	"github.com/bakkerme/free-game-notifier/internal/processors/filter"
	"github.com/bakkerme/free-game-notifier/internal/processors/output"
	"github.com/bakkerme/free-game-notifier/internal/processors/source"
	"github.com/bakkerme/free-game-notifier/internal/processors/trigger"
	"github.com/bakkerme/free-game-notifier/internal/runner"
	"github.com/bakkerme/free-game-notifier/internal/runner/snapshot"
	"github.com/bakkerme/free-game-notifier/internal/sources/curated"
	curatedimpl "github.com/bakkerme/free-game-notifier/internal/sources/curated/impl"
	"github.com/bakkerme/free-game-notifier/internal/sources/epic"
	epicimpl "github.com/bakkerme/free-game-notifier/internal/sources/epic/impl"
	"github.com/bakkerme/free-game-notifier/internal/sources/gog"
	gogimpl "github.com/bakkerme/free-game-notifier/internal/sources/gog/impl"
	"github.com/bakkerme/free-game-notifier/internal/sources/steam"
	steamimpl "github.com/bakkerme/free-game-notifier/internal/sources/steam/impl"
)

// Factory builds processors from config. Non-nil fetchers and senders are used
// as-is, which is how tests swap the network out.
type Factory struct {
	Logger        *slog.Logger
	HTTP          *httpx.Client
	EpicFetcher   epic.Fetcher
	SteamFetcher  steam.Fetcher
	GOGFetcher    gog.Fetcher
	FeedFetcher   curated.Fetcher
	DiscordSender discord.Sender
}

func NewFromConfig(logger *slog.Logger, n *config.Notifier) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	opts := httpx.Options{
		Timeout:   n.HTTP.Timeout.Std(),
		UserAgent: n.HTTP.UserAgent,
		Attempts:  n.HTTP.Retries,
	}
	client := httpx.New(logger, opts, "collector")
	return &Factory{
		Logger:      logger,
		HTTP:        client,
		EpicFetcher: epicimpl.NewFetcher(client, logger),
		GOGFetcher:  gogimpl.NewFetcher(client, logger),
		FeedFetcher: curatedimpl.NewFetcher(client, logger),
		// Steam endpoints come from the source config, so the fetcher is
		// built per source unless one is injected.
		SteamFetcher:  nil,
		DiscordSender: webhook.NewSender(httpx.NewResty(httpx.Options{Timeout: opts.Timeout, UserAgent: opts.UserAgent}, "discord"), logger),
	}
}

func (f *Factory) NewCronTrigger(cfg *config.CronTrigger) (core.TriggerProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cron trigger config is required")
	}
	runAtStart := true
	if cfg.RunAtStart != nil {
		runAtStart = *cfg.RunAtStart
	}
	processor := trigger.NewCronProcessor(cfg.Schedule, cfg.Timezone, runAtStart)
	if err := processor.Validate(); err != nil {
		return nil, err
	}
	return processor, nil
}

func (f *Factory) NewEpicSource(cfg *config.EpicAPISource) (core.Collector, error) {
	processor, err := source.NewEpicProcessor(cfg, f.EpicFetcher, f.Logger)
	if err != nil {
		return nil, err
	}
	return snapshot.WrapCollector(processor, cfg.Snapshot, f.Logger), nil
}

func (f *Factory) NewSteamSource(cfg *config.SteamSearchSource) (core.Collector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("steam_search config is required")
	}
	fetcher := f.SteamFetcher
	if fetcher == nil {
		if f.HTTP == nil {
			return nil, fmt.Errorf("steam_search: http client is required")
		}
		fetcher = steamimpl.NewFetcher(f.HTTP, steam.Endpoints{
			SearchURL: cfg.URL,
			DetailURL: cfg.DetailURL,
			ReviewURL: cfg.ReviewURL,
		}, f.Logger)
	}
	processor, err := source.NewSteamProcessor(cfg, fetcher, f.Logger)
	if err != nil {
		return nil, err
	}
	return snapshot.WrapCollector(processor, cfg.Snapshot, f.Logger), nil
}

func (f *Factory) NewGOGStoreSource(cfg *config.GOGStoreSource) (core.Collector, error) {
	processor, err := source.NewGOGStoreProcessor(cfg, f.GOGFetcher, f.Logger)
	if err != nil {
		return nil, err
	}
	return snapshot.WrapCollector(processor, cfg.Snapshot, f.Logger), nil
}

func (f *Factory) NewGOGGiveawaySource(cfg *config.GOGGiveawaySource) (core.Collector, error) {
	processor, err := source.NewGOGGiveawayProcessor(cfg, f.GOGFetcher, f.Logger)
	if err != nil {
		return nil, err
	}
	return snapshot.WrapCollector(processor, cfg.Snapshot, f.Logger), nil
}

func (f *Factory) NewFeedSource(store core.Store, cfg *config.FeedSource) (core.Collector, error) {
	processor, err := source.NewFeedProcessor(store, cfg, f.FeedFetcher, f.Logger)
	if err != nil {
		return nil, err
	}
	return snapshot.WrapCollector(processor, cfg.Snapshot, f.Logger), nil
}

// NewCollector builds the collector selected by one source entry.
func (f *Factory) NewCollector(store core.Store, src config.SourceConfig) (core.Collector, error) {
	switch {
	case src.EpicAPI != nil:
		if store != core.StoreEpic {
			return nil, fmt.Errorf("epic_api cannot feed store %s", store)
		}
		return f.NewEpicSource(src.EpicAPI)
	case src.SteamSearch != nil:
		if store != core.StoreSteam {
			return nil, fmt.Errorf("steam_search cannot feed store %s", store)
		}
		return f.NewSteamSource(src.SteamSearch)
	case src.GOGStore != nil:
		if store != core.StoreGOG {
			return nil, fmt.Errorf("gog_store cannot feed store %s", store)
		}
		return f.NewGOGStoreSource(src.GOGStore)
	case src.GOGGiveaway != nil:
		if store != core.StoreGOG {
			return nil, fmt.Errorf("gog_giveaway cannot feed store %s", store)
		}
		return f.NewGOGGiveawaySource(src.GOGGiveaway)
	case src.Feed != nil:
		return f.NewFeedSource(store, src.Feed)
	}
	return nil, fmt.Errorf("store %s: empty source entry", store)
}

func (f *Factory) NewRuleFilter(cfg *config.RuleFilter) (core.RecordFilter, error) {
	processor, err := filter.NewRuleFilter(cfg)
	if err != nil {
		return nil, err
	}
	return processor, nil
}

func (f *Factory) NewDispatcher(n *config.Notifier) (core.Dispatcher, error) {
	processor, err := output.NewDiscordProcessor(n.WebhooksFor, f.DiscordSender, f.Logger)
	if err != nil {
		return nil, err
	}
	return processor, nil
}

// NewSeenStore opens and loads the configured seen-set backend. A load error is
// returned alongside the store: the store stays usable and the runner skips the
// partitions that could not be read.
func (f *Factory) NewSeenStore(ctx context.Context, n *config.Notifier) (dedupe.SeenStore, error) {
	var store dedupe.SeenStore
	switch n.SeenStore.Driver {
	case "", "file":
		files, err := dedupe.NewFileStore(n.DataDir, f.Logger)
		if err != nil {
			return nil, err
		}
		store = files
	case "sqlite":
		dsn := n.SeenStore.DSN
		if dsn == "" {
			dsn = filepath.Join(n.DataDir, "seen.db")
		}
		db, err := dedupe.NewSQLiteStore(dsn, n.SeenStore.Table)
		if err != nil {
			return nil, err
		}
		if err := db.Load(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("load sqlite seen store: %w", err)
		}
		f.importFiles(ctx, db, n.DataDir)
		return db, nil
	case "badger":
		dir := n.SeenStore.DSN
		if dir == "" {
			dir = filepath.Join(n.DataDir, "seen.badger")
		}
		db, err := dedupe.NewBadgerStore(dir)
		if err != nil {
			return nil, err
		}
		f.importFiles(ctx, db, n.DataDir)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported seen store driver %q", n.SeenStore.Driver)
	}

	if err := store.Load(ctx); err != nil {
		f.Logger.Error("seen store load failed; affected stores will be skipped", "error", err, "duplicate_risk", true)
		return store, err
	}
	return store, nil
}

type fileImporter interface {
	Import(ctx context.Context, files *dedupe.FileStore) (int, error)
}

// importFiles carries ids from an earlier file-backed installation into db.
func (f *Factory) importFiles(ctx context.Context, db fileImporter, dir string) {
	if dir == "" {
		return
	}
	files, err := dedupe.NewFileStore(dir, f.Logger)
	if err != nil {
		f.Logger.Warn("seen file import skipped", "dir", dir, "error", err)
		return
	}
	defer files.Close()
	imported, err := db.Import(ctx, files)
	if err != nil {
		f.Logger.Warn("seen file import failed", "dir", dir, "error", err)
		return
	}
	if imported > 0 {
		f.Logger.Info("imported seen ids from files", "dir", dir, "ids", imported)
	}
}

// BuildFlow assembles the runner flow for every enabled store.
func (f *Factory) BuildFlow(doc *config.NotifierDocument, seen dedupe.SeenStore) (*runner.Flow, error) {
	if doc == nil {
		return nil, fmt.Errorf("config document is required")
	}
	n := &doc.Notifier

	flow := &runner.Flow{
		SeenStore:      seen,
		MaxConcurrency: n.MaxConcurrency,
		StoreTimeout:   n.StoreTimeout.Std(),
	}

	for _, trig := range n.Trigger {
		if trig.Cron == nil {
			continue
		}
		t, err := f.NewCronTrigger(trig.Cron)
		if err != nil {
			return nil, fmt.Errorf("trigger: %w", err)
		}
		flow.Trigger = t
		break
	}

	for _, store := range core.Stores {
		if !n.StoreEnabled(store) {
			f.Logger.Debug("store disabled", "store", store)
			continue
		}
		sc := n.Stores[store.Key()]
		sources := config.DefaultSources(store)
		if sc != nil && len(sc.Sources) > 0 {
			sources = sc.Sources
		}
		for i, src := range sources {
			collector, err := f.NewCollector(store, src)
			if err != nil {
				return nil, fmt.Errorf("stores.%s.sources[%d]: %w", store.Key(), i, err)
			}
			flow.Collectors = append(flow.Collectors, collector)
		}
	}

	for i, fc := range n.Filters {
		if fc.Rule == nil {
			continue
		}
		rule, err := f.NewRuleFilter(fc.Rule)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		flow.Filters = append(flow.Filters, rule)
	}
	if platforms := n.PlatformSet(); len(platforms) > 0 {
		flow.Filters = append(flow.Filters, filter.NewPlatformFilter(platforms))
	}

	dispatcher, err := f.NewDispatcher(n)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	flow.Dispatcher = dispatcher

	if err := flow.Validate(); err != nil {
		return nil, err
	}
	return flow, nil
}
