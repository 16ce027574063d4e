// Package memory is an in-process store.Store used by tests and dev runs.
// Each Update works on a copy of the state that replaces the live state only
// when the function succeeds.
package memory

import (
	"context"
	"sync"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type state struct {
	users         *table[types.User]
	vehicles      *table[types.Vehicle]
	passes        *table[types.Pass]
	ledger        []types.WalletTransaction
	sessions      *table[types.GuestSession]
	rate          *types.GuestRate
	payments      *table[types.Payment]
	applications  *table[store.ApplicationRecord]
	venues        *table[types.Venue]
	gates         *table[types.Gate]
	events        []types.AccessEvent
	notifications *table[types.Notification]
}

func newState() *state {
	return &state{
		users:         newTable[types.User](),
		vehicles:      newTable[types.Vehicle](),
		passes:        newTable[types.Pass](),
		sessions:      newTable[types.GuestSession](),
		payments:      newTable[types.Payment](),
		applications:  newTable[store.ApplicationRecord](),
		venues:        newTable[types.Venue](),
		gates:         newTable[types.Gate](),
		notifications: newTable[types.Notification](),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:         s.users.clone(),
		vehicles:      s.vehicles.clone(),
		passes:        s.passes.clone(),
		ledger:        s.ledger[:len(s.ledger):len(s.ledger)],
		sessions:      s.sessions.clone(),
		payments:      s.payments.clone(),
		applications:  s.applications.clone(),
		venues:        s.venues.clone(),
		gates:         s.gates.clone(),
		events:        s.events[:len(s.events):len(s.events)],
		notifications: s.notifications.clone(),
	}
	if s.rate != nil {
		r := *s.rate
		c.rate = &r
	}
	return c
}

type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Update(ctx context.Context, fn store.TxFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	next := s.st.clone()
	if err := fn(ctx, &tx{st: next}); err != nil {
		return err
	}
	s.st = next
	return nil
}

func (s *Store) View(ctx context.Context, fn store.TxFn) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{st: s.st, readOnly: true})
}

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) write() error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (t *tx) Users() store.UserRepo                 { return userRepo{t} }
func (t *tx) Vehicles() store.VehicleRepo           { return vehicleRepo{t} }
func (t *tx) Passes() store.PassRepo                { return passRepo{t} }
func (t *tx) Ledger() store.LedgerRepo              { return ledgerRepo{t} }
func (t *tx) GuestSessions() store.GuestSessionRepo { return sessionRepo{t} }
func (t *tx) GuestRate() store.GuestRateRepo        { return rateRepo{t} }
func (t *tx) Payments() store.PaymentRepo           { return paymentRepo{t} }
func (t *tx) Applications() store.ApplicationRepo   { return applicationRepo{t} }
func (t *tx) Venues() store.VenueRepo               { return venueRepo{t} }
func (t *tx) Gates() store.GateRepo                 { return gateRepo{t} }
func (t *tx) Events() store.EventRepo               { return eventRepo{t} }
func (t *tx) Notifications() store.NotificationRepo { return notificationRepo{t} }
