package memory

import (
	"context"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type eventRepo struct{ t *tx }

func (r eventRepo) Append(_ context.Context, e types.AccessEvent) error {
	if err := r.t.write(); err != nil {
		return err
	}
	r.t.st.events = append(r.t.st.events, e)
	return nil
}

func (r eventRepo) Recent(_ context.Context, limit int) ([]types.AccessEvent, error) {
	n := len(r.t.st.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.AccessEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.t.st.events[i])
	}
	return out, nil
}

type notificationRepo struct{ t *tx }

func (r notificationRepo) Insert(_ context.Context, n types.Notification) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.notifications.get(n.ID); ok {
		return store.ErrConflict
	}
	r.t.st.notifications.put(n.ID, n)
	return nil
}

func (r notificationRepo) ListByUser(_ context.Context, userID string) ([]types.Notification, error) {
	return newestFirst(r.t.st.notifications.list(func(n types.Notification) bool { return n.UserID == userID })), nil
}

func (r notificationRepo) MarkRead(_ context.Context, userID, id string, t time.Time) (types.Notification, error) {
	if err := r.t.write(); err != nil {
		return types.Notification{}, err
	}
	n, ok := r.t.st.notifications.get(id)
	if !ok || n.UserID != userID {
		return types.Notification{}, store.ErrNotFound
	}
	if !n.Read {
		ts := t.UTC()
		n.Read = true
		n.ReadAt = &ts
		r.t.st.notifications.put(id, n)
	}
	return n, nil
}

func (r notificationRepo) PruneReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	if err := r.t.write(); err != nil {
		return 0, err
	}
	var n int64
	for _, note := range r.t.st.notifications.list(func(n types.Notification) bool {
		return n.Read && n.CreatedAt.Before(cutoff)
	}) {
		r.t.st.notifications.del(note.ID)
		n++
	}
	return n, nil
}
