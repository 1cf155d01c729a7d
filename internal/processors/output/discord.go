package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/outputs/discord"
)

const (
	iconBaseURL       = "https://thelovinator1.github.io/discord-free-game-notifier/images/"
	maxDescriptionLen = 1000
)

var storeColors = map[core.Store]int{
	core.StoreSteam:   0xfcc603,
	core.StoreEpic:    0x313131,
	core.StoreGOG:     0x86328a,
	core.StoreUbisoft: 0x0070ff,
}

var storeDisplayNames = map[core.Store]string{
	core.StoreEpic: "Epic Games",
}

// WebhookResolver returns the webhook URLs a store's notifications go to.
type WebhookResolver func(store core.Store) []string

// DiscordProcessor renders records as Discord webhook messages and posts them
// to every webhook configured for the record's store.
type DiscordProcessor struct {
	name     string
	webhooks WebhookResolver
	sender   discord.Sender
	logger   *slog.Logger
	now      func() time.Time
}

func NewDiscordProcessor(webhooks WebhookResolver, sender discord.Sender, logger *slog.Logger) (*DiscordProcessor, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook resolver is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordProcessor{
		name:     "discord",
		webhooks: webhooks,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (p *DiscordProcessor) Name() string {
	return p.name
}

func (p *DiscordProcessor) Validate() error {
	if p.sender == nil {
		return fmt.Errorf("discord sender is required")
	}
	return nil
}

// Notify sends one message per target. The result is Delivered when any target
// accepted it; the caller decides whether to mark the record seen.
func (p *DiscordProcessor) Notify(ctx context.Context, record core.GameRecord) core.DispatchResult {
	if err := p.Validate(); err != nil {
		return core.DispatchResult{Err: &core.DispatchError{Store: record.Store, ID: record.ID, Err: err}}
	}
	targets := p.webhooks(record.Store)
	if len(targets) == 0 {
		return core.DispatchResult{Err: &core.DispatchError{Store: record.Store, ID: record.ID, Err: errors.New("no webhook configured")}}
	}

	logger := p.logger.With("store", string(record.Store), "id", record.ID, "title", record.Title)
	if cycleID := core.CycleIDFromContext(ctx); cycleID != "" {
		logger = logger.With("cycle_id", cycleID)
	}
	message := BuildMessage(record, p.now())
	result := core.DispatchResult{Attempted: true}
	var errs []error
	for _, target := range targets {
		redacted := discord.RedactURL(target)
		err := p.sender.Send(ctx, target, message)
		result.Targets = append(result.Targets, core.TargetResult{Target: redacted, Delivered: err == nil, Err: err})
		if err != nil {
			logger.Error("webhook delivery failed", "webhook", redacted, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", redacted, err))
			continue
		}
		logger.Info("notification sent", "webhook", redacted, "upcoming", record.Upcoming)
		result.Delivered = true
	}
	if !result.Delivered {
		result.Err = &core.DispatchError{Store: record.Store, ID: record.ID, Err: errors.Join(errs...)}
	}
	return result
}

// BuildMessage renders a record. Upcoming promotions are a plain text heads-up;
// everything else is a single embed.
func BuildMessage(record core.GameRecord, now time.Time) discord.Message {
	if record.Upcoming {
		return discord.Message{Content: upcomingText(record)}
	}

	embed := discord.Embed{
		Description: Shorten(record.Description, maxDescriptionLen),
		Color:       storeColors[record.Store],
		Timestamp:   now.UTC().Format(time.RFC3339),
		Author: &discord.EmbedAuthor{
			Name:    record.Title,
			URL:     record.URL,
			IconURL: iconBaseURL + string(record.Store) + ".png",
		},
	}
	if record.ImageURL != "" {
		embed.Image = &discord.EmbedImage{URL: record.ImageURL}
	}
	if !record.StartsAt.IsZero() {
		embed.Fields = append(embed.Fields, inlineField("Start", relativeTime(record.StartsAt)))
	}
	if !record.EndsAt.IsZero() {
		embed.Fields = append(embed.Fields, inlineField("End", relativeTime(record.EndsAt)))
	}
	if record.OriginalPrice != "" {
		embed.Fields = append(embed.Fields, inlineField("Old Price", record.OriginalPrice))
	}
	if record.ReleaseDate != "" {
		embed.Fields = append(embed.Fields, inlineField("Release Date", record.ReleaseDate))
	}
	if record.Reviews != "" {
		embed.Fields = append(embed.Fields, inlineField("Reviews", record.Reviews))
	}
	for _, f := range record.Fields {
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if footer := footerText(record); footer != "" {
		embed.Footer = &discord.EmbedFooter{Text: footer}
	}
	return discord.Message{Embeds: []discord.Embed{embed}}
}

func upcomingText(record core.GameRecord) string {
	store := storeDisplayNames[record.Store]
	if store == "" {
		store = string(record.Store)
	}
	start := record.StartsAt.Unix()
	return fmt.Sprintf("🎮 **Upcoming Free Game on %s**\n[%s](<%s>) will be free <t:%d:R> (on <t:%d:F>)",
		store, record.Title, strings.TrimSuffix(record.URL, "/home"), start, start)
}

func footerText(record core.GameRecord) string {
	dev, pub := record.Developer, record.Publisher
	switch {
	case dev == "" && pub == "":
		return record.Seller
	case dev == pub:
		return "Developed by " + dev
	case dev != "" && pub != "":
		return "Developed by " + dev + " | Published by " + pub
	case dev != "":
		return "Developed by " + dev
	default:
		return "Developed by " + pub
	}
}

func inlineField(name, value string) discord.EmbedField {
	return discord.EmbedField{Name: name, Value: value, Inline: true}
}

func relativeTime(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

// Shorten limits s to width runes, cutting at the last space before the limit
// and appending "...".
func Shorten(s string, width int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	cut := width - len("...")
	if cut <= 0 {
		return string(runes[:width])
	}
	end := cut
	for i := cut; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			end = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:end]), unicode.IsSpace) + "..."
}
