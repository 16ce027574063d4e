package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type NotificationService struct {
	store store.Store
	opts  Options
}

func NewNotificationService(st store.Store, opts Options) *NotificationService {
	return &NotificationService{store: st, opts: opts.withDefaults()}
}

// List returns the user's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, userID string) ([]types.Notification, error) {
	userID = strings.TrimSpace(userID)
	var out []types.Notification
	err := n.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Notifications().ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", userID, err)
	}
	return out, nil
}

func (n *NotificationService) Acknowledge(ctx context.Context, userID, id string) (types.Notification, error) {
	var out types.Notification
	err := n.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Notifications().MarkRead(ctx, strings.TrimSpace(userID), strings.TrimSpace(id), n.opts.now())
		return translate(err, ErrNotificationNotFound.With("notification %s", id), nil)
	})
	if err != nil {
		return types.Notification{}, fmt.Errorf("acknowledge notification %s: %w", id, err)
	}
	return out, nil
}
