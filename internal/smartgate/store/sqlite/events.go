package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/smartgate/server/internal/smartgate/types"
)

const eventCols = `event_id, plate_text, confidence, decision, role, reason, detail, gate_slug, gate_id, user_id, guest_session_id, venue_id, venue_note, requested_at_ms, decided_at_ms`

func scanEvent(s scanner) (types.AccessEvent, error) {
	var (
		e                          types.AccessEvent
		decision                   string
		role, detail, gateID, user sql.NullString
		session, venue, note       sql.NullString
		requested                  sql.NullInt64
		decided                    int64
	)
	if err := s.Scan(&e.ID, &e.PlateText, &e.Confidence, &decision, &role, &e.Reason, &detail,
		&e.GateSlug, &gateID, &user, &session, &venue, &note, &requested, &decided); err != nil {
		return types.AccessEvent{}, err
	}
	e.Decision = types.Decision(decision)
	e.Role = types.Role(role.String)
	e.Detail = detail.String
	e.GateID = gateID.String
	e.UserID = user.String
	e.GuestSessionID = session.String
	e.VenueID = venue.String
	e.VenueNote = note.String
	e.RequestedAt = timePtr(requested)
	e.Timestamp = fromMs(decided)
	return e, nil
}

type eventRepo struct{ t *sqlTx }

func (r eventRepo) Append(ctx context.Context, e types.AccessEvent) error {
	_, err := r.t.exec(ctx, `INSERT INTO access_events(`+eventCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID, e.PlateText, e.Confidence, string(e.Decision), nullStr(string(e.Role)), e.Reason, nullStr(e.Detail),
		e.GateSlug, nullStr(e.GateID), nullStr(e.UserID), nullStr(e.GuestSessionID),
		nullStr(e.VenueID), nullStr(e.VenueNote), nullMs(e.RequestedAt), ms(e.Timestamp))
	return mapErr("append access event", err)
}

func (r eventRepo) Recent(ctx context.Context, limit int) ([]types.AccessEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	return queryList(ctx, r.t, "recent access events", scanEvent,
		`SELECT `+eventCols+` FROM access_events ORDER BY decided_at_ms DESC, rowid DESC LIMIT ?;`, limit)
}

const notificationCols = `notification_id, user_id, message, is_read, created_at_ms, read_at_ms`

func scanNotification(s scanner) (types.Notification, error) {
	var (
		n       types.Notification
		read    int
		created int64
		readAt  sql.NullInt64
	)
	if err := s.Scan(&n.ID, &n.UserID, &n.Message, &read, &created, &readAt); err != nil {
		return types.Notification{}, err
	}
	n.Read = read == 1
	n.CreatedAt = fromMs(created)
	n.ReadAt = timePtr(readAt)
	return n, nil
}

type notificationRepo struct{ t *sqlTx }

func (r notificationRepo) Insert(ctx context.Context, n types.Notification) error {
	_, err := r.t.exec(ctx, `INSERT INTO notifications(`+notificationCols+`) VALUES (?, ?, ?, ?, ?, ?);`,
		n.ID, n.UserID, n.Message, boolInt(n.Read), ms(n.CreatedAt), nullMs(n.ReadAt))
	return mapErr("insert notification", err)
}

func (r notificationRepo) ListByUser(ctx context.Context, userID string) ([]types.Notification, error) {
	return queryList(ctx, r.t, "list notifications", scanNotification,
		`SELECT `+notificationCols+` FROM notifications WHERE user_id = ? ORDER BY created_at_ms DESC, rowid DESC;`, userID)
}

func (r notificationRepo) MarkRead(ctx context.Context, userID, id string, t time.Time) (types.Notification, error) {
	if _, err := r.t.exec(ctx, `
UPDATE notifications SET is_read = 1, read_at_ms = ?
WHERE notification_id = ? AND user_id = ? AND is_read = 0;`, ms(t), id, userID); err != nil {
		return types.Notification{}, mapErr("mark notification read", err)
	}
	return queryOne(ctx, r.t, "get notification", scanNotification,
		`SELECT `+notificationCols+` FROM notifications WHERE notification_id = ? AND user_id = ?;`, id, userID)
}

func (r notificationRepo) PruneReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.t.exec(ctx, `DELETE FROM notifications WHERE is_read = 1 AND created_at_ms < ?;`, ms(cutoff))
	if err != nil {
		return 0, mapErr("prune notifications", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr("prune notifications", err)
	}
	return n, nil
}
