package services

import (
	"context"
	"time"

	"github.com/connectify/apiserver/types"
	"github.com/sirupsen/logrus"
)

const defaultDirectoryTimeout = 5 * time.Second

// DirectoryUser is the identity record mirrored to the chat provider.
type DirectoryUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// DirectorySync mirrors user identities to an external directory.
type DirectorySync interface {
	UpsertUser(ctx context.Context, user DirectoryUser) error
}

// directoryNotifier calls DirectorySync after a state change has been stored.
// Failures are logged and never returned.
type directoryNotifier struct {
	sync    DirectorySync
	timeout time.Duration
	log     logrus.FieldLogger
}

func newDirectoryNotifier(sync DirectorySync, timeout time.Duration, log logrus.FieldLogger) *directoryNotifier {
	if timeout <= 0 {
		timeout = defaultDirectoryTimeout
	}
	return &directoryNotifier{sync: sync, timeout: timeout, log: log}
}

func (n *directoryNotifier) notify(ctx context.Context, user types.User) {
	if n == nil || n.sync == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	err := n.sync.UpsertUser(ctx, DirectoryUser{
		ID:    user.ID,
		Name:  user.FullName,
		Image: user.ProfilePic,
	})
	if err != nil {
		n.log.WithError(err).WithField("user_id", user.ID).Warn("directory sync failed")
		return
	}
	n.log.WithField("user_id", user.ID).Debug("directory user upserted")
}
