// Package store defines the persistence contracts shared by the SQLite and
// in-memory backends. Every mutation happens inside one unit of work.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrReadOnly = errors.New("write attempted in read-only transaction")
)

// TxFn runs against a consistent view of the store. Returning an error from an
// Update discards every write the function made.
type TxFn func(ctx context.Context, tx Tx) error

// Store is a transactional unit-of-work boundary. Update calls are serialised.
// A TxFn must not call back into the same Store.
type Store interface {
	Update(ctx context.Context, fn TxFn) error
	View(ctx context.Context, fn TxFn) error
}

type Tx interface {
	Users() UserRepo
	Vehicles() VehicleRepo
	Passes() PassRepo
	Ledger() LedgerRepo
	GuestSessions() GuestSessionRepo
	GuestRate() GuestRateRepo
	Payments() PaymentRepo
	Applications() ApplicationRepo
	Venues() VenueRepo
	Gates() GateRepo
	Events() EventRepo
	Notifications() NotificationRepo
}
