// Package directory moves directory updates through the message queue so
// that the API never waits on the chat provider.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/connectify/apiserver/internal/services"
)

// EventUserUpsert is the "type" attribute of queued upserts.
const EventUserUpsert = "user.upsert"

// UserUpsert is the queued payload.
type UserUpsert struct {
	User     services.DirectoryUser `json:"user"`
	QueuedAt time.Time              `json:"queuedAt"`
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error)
}

// Publisher implements services.DirectorySync by enqueueing the upsert.
type Publisher struct {
	mq      jsonPublisher
	channel string
	now     func() time.Time
}

func NewPublisher(mq jsonPublisher, channel string) *Publisher {
	return &Publisher{mq: mq, channel: channel, now: time.Now}
}

func (p *Publisher) UpsertUser(ctx context.Context, user services.DirectoryUser) error {
	_, err := p.mq.PublishJSON(ctx, p.channel, UserUpsert{
		User:     user,
		QueuedAt: p.now().UTC(),
	}, map[string]string{"type": EventUserUpsert})
	if err != nil {
		return fmt.Errorf("enqueue directory upsert for %s: %w", user.ID, err)
	}
	return nil
}
