package memory

import (
	"context"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type venueRepo struct{ t *tx }

func (r venueRepo) Get(_ context.Context, id string) (types.Venue, error) {
	v, ok := r.t.st.venues.get(id)
	if !ok {
		return types.Venue{}, store.ErrNotFound
	}
	return v, nil
}

func (r venueRepo) List(context.Context) ([]types.Venue, error) {
	return r.t.st.venues.list(nil), nil
}

func (r venueRepo) Insert(_ context.Context, v types.Venue) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.venues.get(v.ID); ok {
		return store.ErrConflict
	}
	r.t.st.venues.put(v.ID, v)
	return nil
}

func (r venueRepo) Update(_ context.Context, v types.Venue) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.venues.get(v.ID); !ok {
		return store.ErrNotFound
	}
	r.t.st.venues.put(v.ID, v)
	return nil
}

func (r venueRepo) Delete(_ context.Context, id string) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if !r.t.st.venues.del(id) {
		return store.ErrNotFound
	}
	return nil
}

type gateRepo struct{ t *tx }

func (r gateRepo) Get(_ context.Context, id string) (types.Gate, error) {
	g, ok := r.t.st.gates.get(id)
	if !ok {
		return types.Gate{}, store.ErrNotFound
	}
	return g, nil
}

func (r gateRepo) GetBySlug(_ context.Context, slug string) (types.Gate, error) {
	g, ok := r.t.st.gates.find(func(g types.Gate) bool { return g.Slug == slug })
	if !ok {
		return types.Gate{}, store.ErrNotFound
	}
	return g, nil
}

func (r gateRepo) List(context.Context) ([]types.Gate, error) {
	return r.t.st.gates.list(nil), nil
}

func (r gateRepo) slugTaken(g types.Gate) bool {
	_, taken := r.t.st.gates.find(func(o types.Gate) bool { return o.ID != g.ID && o.Slug == g.Slug })
	return taken
}

func (r gateRepo) Insert(_ context.Context, g types.Gate) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.gates.get(g.ID); ok || r.slugTaken(g) {
		return store.ErrConflict
	}
	r.t.st.gates.put(g.ID, g)
	return nil
}

func (r gateRepo) Update(_ context.Context, g types.Gate) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.gates.get(g.ID); !ok {
		return store.ErrNotFound
	}
	if r.slugTaken(g) {
		return store.ErrConflict
	}
	r.t.st.gates.put(g.ID, g)
	return nil
}

func (r gateRepo) Delete(_ context.Context, id string) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if !r.t.st.gates.del(id) {
		return store.ErrNotFound
	}
	return nil
}

func (r gateRepo) UnlinkVenue(_ context.Context, venueID string) error {
	if err := r.t.write(); err != nil {
		return err
	}
	for _, g := range r.t.st.gates.list(func(g types.Gate) bool { return g.VenueID == venueID }) {
		g.VenueID = ""
		g.Direction = ""
		r.t.st.gates.put(g.ID, g)
	}
	return nil
}

func (r gateRepo) MarkSeen(_ context.Context, id string, t time.Time) error {
	if err := r.t.write(); err != nil {
		return err
	}
	g, ok := r.t.st.gates.get(id)
	if !ok {
		return store.ErrNotFound
	}
	ts := t.UTC()
	g.LastSeenAt = &ts
	r.t.st.gates.put(id, g)
	return nil
}
