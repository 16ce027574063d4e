package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type GateRegistry struct {
	store store.Store
	opts  Options
}

func NewGateRegistry(st store.Store, opts Options) *GateRegistry {
	return &GateRegistry{store: st, opts: opts.withDefaults()}
}

type GateInput struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name" validate:"required"`
	Slug      string          `json:"slug,omitempty"`
	MinRole   types.Role      `json:"min_role" validate:"required"`
	Location  string          `json:"location,omitempty"`
	Active    *bool           `json:"active,omitempty"`
	VenueID   string          `json:"venue_id,omitempty"`
	Direction types.Direction `json:"direction,omitempty"`
}

func (r *GateRegistry) Create(ctx context.Context, in GateInput) (types.Gate, error) {
	g := types.Gate{ID: strings.TrimSpace(in.ID), Active: true, CreatedAt: r.opts.now()}
	if g.ID == "" {
		g.ID = types.NewID("GATE")
	}
	err := r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if g, err = applyGateInput(ctx, tx, g, in); err != nil {
			return err
		}
		return translate(tx.Gates().Insert(ctx, g), nil, ErrDuplicate.With("gate %s or slug %s exists", g.ID, g.Slug))
	})
	if err != nil {
		return types.Gate{}, fmt.Errorf("create gate: %w", err)
	}
	return g, nil
}

// Update replaces the gate's settings. A nil Active keeps the current flag.
func (r *GateRegistry) Update(ctx context.Context, id string, in GateInput) (types.Gate, error) {
	id = strings.TrimSpace(id)
	var out types.Gate
	err := r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		g, err := tx.Gates().Get(ctx, id)
		if err != nil {
			return translate(err, ErrGateNotFound.With("gate %s", id), nil)
		}
		if out, err = applyGateInput(ctx, tx, g, in); err != nil {
			return err
		}
		return translate(tx.Gates().Update(ctx, out), nil, ErrDuplicate.With("slug %s is taken", out.Slug))
	})
	if err != nil {
		return types.Gate{}, fmt.Errorf("update gate %s: %w", id, err)
	}
	return out, nil
}

func (r *GateRegistry) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return translate(tx.Gates().Delete(ctx, id), ErrGateNotFound.With("gate %s", id), nil)
	})
	if err != nil {
		return fmt.Errorf("delete gate %s: %w", id, err)
	}
	return nil
}

func (r *GateRegistry) List(ctx context.Context) ([]types.Gate, error) {
	var out []types.Gate
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Gates().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	return out, nil
}

// Resolve finds a gate by id, then by slug.
func (r *GateRegistry) Resolve(ctx context.Context, ref string) (types.Gate, error) {
	var out types.Gate
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = resolveGateTx(ctx, tx, ref)
		return translate(err, ErrGateNotFound.With("gate %s", ref), nil)
	})
	if err != nil {
		return types.Gate{}, fmt.Errorf("resolve gate %s: %w", ref, err)
	}
	return out, nil
}

// NoteSeen records a camera heartbeat for the gate.
func (r *GateRegistry) NoteSeen(ctx context.Context, ref string) (types.Gate, error) {
	var out types.Gate
	err := r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		g, err := resolveGateTx(ctx, tx, ref)
		if err != nil {
			return translate(err, ErrGateNotFound.With("gate %s", ref), nil)
		}
		if err := markSeenTx(ctx, tx, &g, r.opts.now()); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return types.Gate{}, fmt.Errorf("gate heartbeat %s: %w", ref, err)
	}
	return out, nil
}

func resolveGateTx(ctx context.Context, tx store.Tx, ref string) (types.Gate, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return types.Gate{}, store.ErrNotFound
	}
	g, err := tx.Gates().Get(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return tx.Gates().GetBySlug(ctx, Slugify(ref))
	}
	return g, err
}

func markSeenTx(ctx context.Context, tx store.Tx, g *types.Gate, now time.Time) error {
	if err := tx.Gates().MarkSeen(ctx, g.ID, now); err != nil {
		return err
	}
	g.LastSeenAt = &now
	return nil
}

func applyGateInput(ctx context.Context, tx store.Tx, g types.Gate, in GateInput) (types.Gate, error) {
	if err := validateInput(in); err != nil {
		return g, err
	}
	role, err := types.ParseRole(string(in.MinRole))
	if err != nil {
		return g, ErrInvalidRole.With("%v", err)
	}
	g.Name = strings.TrimSpace(in.Name)
	g.Slug = Slugify(in.Slug)
	if g.Slug == "" {
		g.Slug = Slugify(g.Name)
	}
	g.MinRole = role
	g.Location = strings.TrimSpace(in.Location)
	if in.Active != nil {
		g.Active = *in.Active
	}
	g.VenueID = strings.TrimSpace(in.VenueID)
	g.Direction = ""
	if g.VenueID != "" {
		if !in.Direction.Valid() {
			return g, ErrInvalidDirection.With("direction is required when a venue is linked")
		}
		if _, err := tx.Venues().Get(ctx, g.VenueID); err != nil {
			return g, translate(err, ErrVenueNotFound.With("venue %s", g.VenueID), nil)
		}
		g.Direction = in.Direction
	}
	return g, nil
}

// Slugify lower-cases s and joins its words with dashes.
func Slugify(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	}), "-")
}
