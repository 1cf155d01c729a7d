package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/robfig/cron/v3"
)

// CronProcessor emits a trigger event on each cron tick. Ticks that find the
// previous event still unconsumed are dropped.
type CronProcessor struct {
	name       string
	schedule   string
	timezone   string
	runAtStart bool
	cron       *cron.Cron
	events     chan core.TriggerEvent
	stopOnce   sync.Once
}

func NewCronProcessor(schedule, timezone string, runAtStart bool) *CronProcessor {
	return &CronProcessor{
		name:       "cron",
		schedule:   schedule,
		timezone:   timezone,
		runAtStart: runAtStart,
	}
}

func (c *CronProcessor) Name() string {
	return c.name
}

func (c *CronProcessor) Validate() error {
	if c.schedule == "" {
		return fmt.Errorf("cron schedule is required")
	}
	if _, err := cron.ParseStandard(c.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", c.schedule, err)
	}
	if c.timezone != "" {
		if _, err := time.LoadLocation(c.timezone); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return nil
}

func (c *CronProcessor) Start(ctx context.Context) (<-chan core.TriggerEvent, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	location := time.UTC
	if c.timezone != "" {
		tz, err := time.LoadLocation(c.timezone)
		if err != nil {
			return nil, err
		}
		location = tz
	}

	c.events = make(chan core.TriggerEvent, 1)
	c.cron = cron.New(cron.WithLocation(location))
	_, err := c.cron.AddFunc(c.schedule, func() {
		c.emit("schedule")
	})
	if err != nil {
		return nil, err
	}

	if c.runAtStart {
		c.emit("startup")
	}
	c.cron.Start()

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return c.events, nil
}

func (c *CronProcessor) emit(reason string) {
	select {
	case c.events <- core.TriggerEvent{Timestamp: time.Now().UTC(), Reason: reason}:
	default:
	}
}

// Stop halts the schedule and closes the event channel. It is safe to call
// more than once.
func (c *CronProcessor) Stop() error {
	c.stopOnce.Do(func() {
		if c.cron != nil {
			ctx := c.cron.Stop()
			<-ctx.Done()
		}
		if c.events != nil {
			close(c.events)
		}
	})
	return nil
}
