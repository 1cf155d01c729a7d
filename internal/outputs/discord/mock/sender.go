package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/free-game-notifier/internal/outputs/discord"
)

// Delivery is one recorded Send call.
type Delivery struct {
	WebhookURL string
	Message    discord.Message
}

type Sender struct {
	mu         sync.Mutex
	Deliveries []Delivery
	Err        error
	// ErrByURL fails individual webhooks.
	ErrByURL map[string]error
}

func (s *Sender) Send(ctx context.Context, webhookURL string, message discord.Message) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.ErrByURL[webhookURL]; ok && err != nil {
		return err
	}
	if s.Err != nil {
		return s.Err
	}
	s.Deliveries = append(s.Deliveries, Delivery{WebhookURL: webhookURL, Message: message})
	return nil
}

// Count returns the number of accepted deliveries.
func (s *Sender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Deliveries)
}
