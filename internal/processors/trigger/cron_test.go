package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
)

func TestCronProcessorValidate(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		timezone string
		wantErr  bool
	}{
		{"default schedule", "1,16,31,46 * * * *", "", false},
		{"with timezone", "0 * * * *", "UTC", false},
		{"empty", "", "", true},
		{"bad schedule", "every minute", "", true},
		{"bad timezone", "0 * * * *", "Mars/Olympus", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCronProcessor(tt.schedule, tt.timezone, false).Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestCronProcessorRunAtStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCronProcessor("0 0 1 1 *", "", true)
	events, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Reason != "startup" || ev.Timestamp.IsZero() {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a startup event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel was not closed")
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestCronProcessorDropsWhenBusy(t *testing.T) {
	c := NewCronProcessor("* * * * *", "", false)
	c.events = make(chan core.TriggerEvent, 1)
	c.emit("schedule")
	c.emit("schedule")
	if len(c.events) != 1 {
		t.Fatalf("buffered events=%d, want 1", len(c.events))
	}
}
