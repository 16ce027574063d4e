package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// VenueTracker keeps the occupancy counters of parking venues. Counters
// never leave [0, capacity].
type VenueTracker struct {
	store store.Store
	opts  Options
}

func NewVenueTracker(st store.Store, opts Options) *VenueTracker {
	return &VenueTracker{store: st, opts: opts.withDefaults()}
}

type VenueInput struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name" validate:"required"`
	Capacity int    `json:"capacity" validate:"gte=0"`
	Occupied int    `json:"occupied" validate:"gte=0"`
}

// VenueMovement is the outcome of one entry or exit.
type VenueMovement struct {
	Venue types.Venue `json:"venue"`
	Note  string      `json:"note,omitempty"`
}

// RecordEvent moves the venue counter one step. A step absorbed by a clamp
// is reported through the movement's note, not as an error.
func (t *VenueTracker) RecordEvent(ctx context.Context, venueID string, d types.Direction) (VenueMovement, error) {
	if !d.Valid() {
		return VenueMovement{}, ErrInvalidDirection
	}
	var out VenueMovement
	err := t.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		v, note, err := applyVenueTx(ctx, tx, strings.TrimSpace(venueID), d, t.opts.now())
		out = VenueMovement{Venue: v, Note: note}
		return err
	})
	if err != nil {
		return VenueMovement{}, fmt.Errorf("venue %s %s: %w", venueID, d, err)
	}
	if out.Note != "" {
		t.opts.Logger.Info("venue counter clamped", "venue", out.Venue.ID, "note", out.Note)
	}
	return out, nil
}

func (t *VenueTracker) List(ctx context.Context) ([]types.Venue, error) {
	var out []types.Venue
	err := t.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Venues().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	for i := range out {
		out[i] = out[i].WithPercent()
	}
	return out, nil
}

// Overview totals occupancy across every venue.
func (t *VenueTracker) Overview(ctx context.Context) (types.ParkingOverview, error) {
	venues, err := t.List(ctx)
	if err != nil {
		return types.ParkingOverview{}, err
	}
	out := types.ParkingOverview{Venues: venues}
	for _, v := range venues {
		out.Capacity += v.Capacity
		out.Occupied += v.Occupied
	}
	total := types.Venue{Capacity: out.Capacity, Occupied: out.Occupied}.WithPercent()
	out.Percent = total.Percent
	out.Available = out.Capacity - out.Occupied
	if out.Venues == nil {
		out.Venues = []types.Venue{}
	}
	return out, nil
}

func (t *VenueTracker) Get(ctx context.Context, id string) (types.Venue, error) {
	var out types.Venue
	err := t.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Venues().Get(ctx, strings.TrimSpace(id))
		return translate(err, ErrVenueNotFound, nil)
	})
	if err != nil {
		return types.Venue{}, fmt.Errorf("get venue %s: %w", id, err)
	}
	return out.WithPercent(), nil
}

func (t *VenueTracker) Create(ctx context.Context, in VenueInput) (types.Venue, error) {
	if err := validateInput(in); err != nil {
		return types.Venue{}, err
	}
	v := types.Venue{
		ID:        strings.TrimSpace(in.ID),
		Name:      strings.TrimSpace(in.Name),
		Capacity:  in.Capacity,
		Occupied:  in.Occupied,
		UpdatedAt: t.opts.now(),
	}.Clamp()
	if v.ID == "" {
		v.ID = types.NewID("VEN")
	}
	err := t.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return translate(tx.Venues().Insert(ctx, v), nil, ErrDuplicate.With("venue %s exists", v.ID))
	})
	if err != nil {
		return types.Venue{}, fmt.Errorf("create venue: %w", err)
	}
	return v.WithPercent(), nil
}

// Update replaces name, capacity and occupied, re-clamping the counter.
func (t *VenueTracker) Update(ctx context.Context, id string, in VenueInput) (types.Venue, error) {
	if err := validateInput(in); err != nil {
		return types.Venue{}, err
	}
	var out types.Venue
	err := t.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		v, err := tx.Venues().Get(ctx, strings.TrimSpace(id))
		if err != nil {
			return translate(err, ErrVenueNotFound, nil)
		}
		v.Name = strings.TrimSpace(in.Name)
		v.Capacity = in.Capacity
		v.Occupied = in.Occupied
		v.UpdatedAt = t.opts.now()
		out = v.Clamp()
		return tx.Venues().Update(ctx, out)
	})
	if err != nil {
		return types.Venue{}, fmt.Errorf("update venue %s: %w", id, err)
	}
	return out.WithPercent(), nil
}

// Delete removes the venue and unlinks every gate that pointed at it.
func (t *VenueTracker) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := t.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Gates().UnlinkVenue(ctx, id); err != nil {
			return err
		}
		return translate(tx.Venues().Delete(ctx, id), ErrVenueNotFound, nil)
	})
	if err != nil {
		return fmt.Errorf("delete venue %s: %w", id, err)
	}
	return nil
}

func applyVenueTx(ctx context.Context, tx store.Tx, venueID string, d types.Direction, now time.Time) (types.Venue, string, error) {
	v, err := tx.Venues().Get(ctx, venueID)
	if err != nil {
		return types.Venue{}, "", translate(err, ErrVenueNotFound, nil)
	}
	v, note := v.Clamp().Apply(d)
	v.UpdatedAt = now
	if err := tx.Venues().Update(ctx, v); err != nil {
		return types.Venue{}, "", err
	}
	return v.WithPercent(), note, nil
}
