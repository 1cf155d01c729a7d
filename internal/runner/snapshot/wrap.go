package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

type ConfigProvider interface {
	SnapshotConfig() *core.SnapshotConfig
}

// CollectorWrapper records a collector's output to disk, or replays a
// recording instead of touching the network.
type CollectorWrapper struct {
	core.Collector
	snapshot *core.SnapshotConfig
	logger   *slog.Logger
}

func (w *CollectorWrapper) SnapshotConfig() *core.SnapshotConfig {
	return w.snapshot
}

func (w *CollectorWrapper) Collect(ctx context.Context) ([]core.GameRecord, error) {
	if w.snapshot.Restore {
		payload, err := Load(w.snapshot.Path)
		if err != nil {
			return nil, err
		}
		for _, record := range payload.Records {
			if record.Store != w.Store() {
				return nil, fmt.Errorf("snapshot %s holds %s records, want %s", w.snapshot.Path, record.Store, w.Store())
			}
		}
		w.logger.Info("replaying snapshot", "path", w.snapshot.Path, "records", len(payload.Records), "saved_at", payload.SavedAt)
		return payload.Records, nil
	}

	records, err := w.Collector.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if w.snapshot.Snapshot {
		payload := Payload{Collector: w.Name(), Store: w.Store(), SavedAt: time.Now().UTC(), Records: records}
		if err := Save(w.snapshot.Path, payload); err != nil {
			w.logger.Warn("snapshot save failed", "path", w.snapshot.Path, "error", err)
		}
	}
	return records, nil
}

func WrapCollector(collector core.Collector, cfg *core.SnapshotConfig, logger *slog.Logger) core.Collector {
	if collector == nil {
		return nil
	}
	if cfg == nil || (!cfg.Snapshot && !cfg.Restore) {
		return collector
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CollectorWrapper{
		Collector: collector,
		snapshot:  cfg,
		logger:    logger.With("collector", collector.Name()),
	}
}
