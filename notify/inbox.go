/*
Package notify delivers and stores user notifications.

PURPOSE:
  The ledger and engines raise notifications through points.NotificationSink
  and never wait on or fail because of delivery. This package provides the
  sinks: a persistent inbox users read through the API, a log sink, a Redis
  publisher for out-of-process consumers, and a fan-out combining them.

SEE ALSO:
  - points/outbox.go: Post-commit delivery
*/
package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

type Store interface {
	SaveNotification(ctx context.Context, n points.Notification) error
	GetNotification(ctx context.Context, id string) (points.Notification, error)
	// ListNotifications returns the user's notifications, newest first.
	ListNotifications(ctx context.Context, user points.UserID) ([]points.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	DeleteNotifications(ctx context.Context, ids []string) error
}

// =============================================================================
// INBOX - Persistent sink + read side
// =============================================================================

type Inbox struct {
	store Store
	log   logrus.FieldLogger
}

func NewInbox(store Store, log logrus.FieldLogger) *Inbox {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Inbox{store: store, log: log.WithField("component", "inbox")}
}

// Send stores n in the recipient's inbox.
func (i *Inbox) Send(ctx context.Context, n points.Notification) error {
	if n.UserID == "" {
		return points.Invalid("user_id", "notification has no recipient")
	}
	return i.store.SaveNotification(ctx, n)
}

func (i *Inbox) List(ctx context.Context, user points.UserID) ([]points.Notification, error) {
	return i.store.ListNotifications(ctx, user)
}

func (i *Inbox) UnreadCount(ctx context.Context, user points.UserID) (int, error) {
	ns, err := i.store.ListNotifications(ctx, user)
	if err != nil {
		return 0, err
	}
	var n int
	for _, note := range ns {
		if !note.Read {
			n++
		}
	}
	return n, nil
}

func (i *Inbox) MarkRead(ctx context.Context, user points.UserID, id string) error {
	if _, err := i.owned(ctx, user, id); err != nil {
		return err
	}
	return i.store.MarkNotificationRead(ctx, id)
}

func (i *Inbox) Delete(ctx context.Context, user points.UserID, id string) error {
	return i.DeleteMany(ctx, user, []string{id})
}

// DeleteMany removes ids only if every one of them belongs to user.
func (i *Inbox) DeleteMany(ctx context.Context, user points.UserID, ids []string) error {
	if len(ids) == 0 {
		return points.Invalid("ids", "no notifications given")
	}
	for _, id := range ids {
		if _, err := i.owned(ctx, user, id); err != nil {
			return err
		}
	}
	if err := i.store.DeleteNotifications(ctx, ids); err != nil {
		return err
	}
	i.log.WithFields(logrus.Fields{"user_id": user, "count": len(ids)}).Debug("notifications deleted")
	return nil
}

func (i *Inbox) owned(ctx context.Context, user points.UserID, id string) (points.Notification, error) {
	n, err := i.store.GetNotification(ctx, id)
	if err != nil {
		return points.Notification{}, err
	}
	if n.UserID != user {
		return points.Notification{}, fmt.Errorf("%w: notification %s belongs to another user", points.ErrUnauthorized, id)
	}
	return n, nil
}
