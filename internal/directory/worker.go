package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/connectify/apiserver/internal/mq"
	"github.com/connectify/apiserver/internal/services"
	"github.com/sirupsen/logrus"
)

type subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Worker drains queued upserts into a DirectorySync.
type Worker struct {
	sub     subscriber
	sync    services.DirectorySync
	channel string
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewWorker(sub subscriber, sync services.DirectorySync, channel string, timeout time.Duration, log logrus.FieldLogger) *Worker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{sub: sub, sync: sync, channel: channel, timeout: timeout, log: log}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithField("channel", w.channel).Info("directory worker started")
	return w.sub.Subscribe(ctx, w.channel, w.Handle)
}

// Handle processes one queued message. Malformed payloads are discarded;
// provider failures are returned so the message is redelivered.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	if kind := msg.Attributes["type"]; kind != "" && kind != EventUserUpsert {
		w.log.WithField("type", kind).Warn("skipping unknown directory event")
		return nil
	}

	var event UserUpsert
	if err := msg.Decode(&event); err != nil {
		w.log.WithError(err).Warn("discarding malformed directory event")
		return err
	}
	if event.User.ID == "" {
		w.log.WithField("message_id", msg.ID).Warn("discarding directory event without user id")
		return fmt.Errorf("%w: missing user id", mq.ErrDiscard)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.sync.UpsertUser(ctx, event.User); err != nil {
		w.log.WithError(err).WithField("user_id", event.User.ID).Warn("directory upsert failed, will retry")
		return err
	}
	w.log.WithField("user_id", event.User.ID).Debug("directory user upserted")
	return nil
}
