package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smartgate/server/internal/smartgate/types"
)

type UserRepo interface {
	Get(ctx context.Context, id string) (types.User, error)
	// FindByLogin matches id, email (case-insensitive) or name, in that order.
	FindByLogin(ctx context.Context, identifier string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Insert(ctx context.Context, u types.User) error
	Update(ctx context.Context, u types.User) error
	// Delete removes the user together with their vehicles and passes.
	Delete(ctx context.Context, id string) error
}

type VehicleRepo interface {
	Get(ctx context.Context, id string) (types.Vehicle, error)
	GetByPlate(ctx context.Context, plate string) (types.Vehicle, error)
	ListByUser(ctx context.Context, userID string) ([]types.Vehicle, error)
	List(ctx context.Context) ([]types.Vehicle, error)
	Insert(ctx context.Context, v types.Vehicle) error
	Update(ctx context.Context, v types.Vehicle) error
	Delete(ctx context.Context, id string) error
}

type PassRepo interface {
	Get(ctx context.Context, id string) (types.Pass, error)
	// ListByUser returns the user's passes, most recently issued first.
	ListByUser(ctx context.Context, userID string) ([]types.Pass, error)
	List(ctx context.Context) ([]types.Pass, error)
	Insert(ctx context.Context, p types.Pass) error
	Update(ctx context.Context, p types.Pass) error
	Delete(ctx context.Context, id string) error
}

type LedgerRepo interface {
	Append(ctx context.Context, t types.WalletTransaction) error
	Balance(ctx context.Context, userID string) (types.Cents, error)
	// List returns the newest transactions first; limit <= 0 means all.
	List(ctx context.Context, userID string, limit int) ([]types.WalletTransaction, error)
	LastOfType(ctx context.Context, userID string, typ types.TxType) (*time.Time, error)
}

type GuestSessionRepo interface {
	Get(ctx context.Context, id string) (types.GuestSession, error)
	FindOpenByPlate(ctx context.Context, plate string) (types.GuestSession, error)
	// FindLatestByPlate returns the most recent session for the plate in any state.
	FindLatestByPlate(ctx context.Context, plate string) (types.GuestSession, error)
	List(ctx context.Context) ([]types.GuestSession, error)
	// Insert fails with ErrConflict if the plate already has an open session.
	Insert(ctx context.Context, s types.GuestSession) error
	Update(ctx context.Context, s types.GuestSession) error
}

type GuestRateRepo interface {
	// Get returns ErrNotFound when no rate was ever stored.
	Get(ctx context.Context) (types.GuestRate, error)
	Put(ctx context.Context, r types.GuestRate) error
}

type PaymentRepo interface {
	Get(ctx context.Context, id string) (types.Payment, error)
	Insert(ctx context.Context, p types.Payment) error
	ListBySession(ctx context.Context, sessionID string) ([]types.Payment, error)
	ListByPass(ctx context.Context, passID string) ([]types.Payment, error)
	// List returns every payment, oldest first.
	List(ctx context.Context) ([]types.Payment, error)
}

// ApplicationRecord is the kind-agnostic stored form of types.Application.
type ApplicationRecord struct {
	ID          string
	Kind        types.ApplicationKind
	UserID      string
	Payload     json.RawMessage
	Status      types.ApplicationStatus
	ReviewerID  string
	Note        string
	SubmittedAt time.Time
	ReviewedAt  *time.Time
}

type ApplicationRepo interface {
	Get(ctx context.Context, kind types.ApplicationKind, id string) (ApplicationRecord, error)
	// List returns newest first; an empty status matches all.
	List(ctx context.Context, kind types.ApplicationKind, status types.ApplicationStatus) ([]ApplicationRecord, error)
	Insert(ctx context.Context, a ApplicationRecord) error
	Update(ctx context.Context, a ApplicationRecord) error
}

type VenueRepo interface {
	Get(ctx context.Context, id string) (types.Venue, error)
	List(ctx context.Context) ([]types.Venue, error)
	Insert(ctx context.Context, v types.Venue) error
	Update(ctx context.Context, v types.Venue) error
	Delete(ctx context.Context, id string) error
}

type GateRepo interface {
	Get(ctx context.Context, id string) (types.Gate, error)
	GetBySlug(ctx context.Context, slug string) (types.Gate, error)
	List(ctx context.Context) ([]types.Gate, error)
	Insert(ctx context.Context, g types.Gate) error
	Update(ctx context.Context, g types.Gate) error
	Delete(ctx context.Context, id string) error
	// UnlinkVenue clears the venue link of every gate pointing at venueID.
	UnlinkVenue(ctx context.Context, venueID string) error
	MarkSeen(ctx context.Context, id string, t time.Time) error
}

type EventRepo interface {
	Append(ctx context.Context, e types.AccessEvent) error
	// Recent returns the newest events first.
	Recent(ctx context.Context, limit int) ([]types.AccessEvent, error)
}

type NotificationRepo interface {
	Insert(ctx context.Context, n types.Notification) error
	ListByUser(ctx context.Context, userID string) ([]types.Notification, error)
	MarkRead(ctx context.Context, userID, id string, t time.Time) (types.Notification, error)
	PruneReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
