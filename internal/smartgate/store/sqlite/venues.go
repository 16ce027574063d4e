package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/smartgate/server/internal/smartgate/types"
)

const venueCols = `venue_id, name, capacity, occupied, updated_at_ms`

func scanVenue(s scanner) (types.Venue, error) {
	var (
		v       types.Venue
		updated int64
	)
	if err := s.Scan(&v.ID, &v.Name, &v.Capacity, &v.Occupied, &updated); err != nil {
		return types.Venue{}, err
	}
	v.UpdatedAt = fromMs(updated)
	return v, nil
}

type venueRepo struct{ t *sqlTx }

func (r venueRepo) Get(ctx context.Context, id string) (types.Venue, error) {
	return queryOne(ctx, r.t, "get venue", scanVenue,
		`SELECT `+venueCols+` FROM parking_venues WHERE venue_id = ?;`, id)
}

func (r venueRepo) List(ctx context.Context) ([]types.Venue, error) {
	return queryList(ctx, r.t, "list venues", scanVenue,
		`SELECT `+venueCols+` FROM parking_venues ORDER BY name, venue_id;`)
}

func (r venueRepo) Insert(ctx context.Context, v types.Venue) error {
	_, err := r.t.exec(ctx, `INSERT INTO parking_venues(`+venueCols+`) VALUES (?, ?, ?, ?, ?);`,
		v.ID, v.Name, v.Capacity, v.Occupied, ms(v.UpdatedAt))
	return mapErr("insert venue", err)
}

func (r venueRepo) Update(ctx context.Context, v types.Venue) error {
	return mapErr("update venue", r.t.execOne(ctx,
		`UPDATE parking_venues SET name = ?, capacity = ?, occupied = ?, updated_at_ms = ? WHERE venue_id = ?;`,
		v.Name, v.Capacity, v.Occupied, ms(v.UpdatedAt), v.ID))
}

func (r venueRepo) Delete(ctx context.Context, id string) error {
	return mapErr("delete venue", r.t.execOne(ctx, `DELETE FROM parking_venues WHERE venue_id = ?;`, id))
}

const gateCols = `gate_id, name, slug, min_role, location, active, venue_id, direction, last_seen_at_ms, created_at_ms`

func scanGate(s scanner) (types.Gate, error) {
	var (
		g                types.Gate
		role             string
		active           int
		venue, direction sql.NullString
		lastSeen         sql.NullInt64
		created          int64
	)
	if err := s.Scan(&g.ID, &g.Name, &g.Slug, &role, &g.Location, &active, &venue, &direction, &lastSeen, &created); err != nil {
		return types.Gate{}, err
	}
	g.MinRole = types.Role(role)
	g.Active = active == 1
	g.VenueID = venue.String
	g.Direction = types.Direction(direction.String)
	g.LastSeenAt = timePtr(lastSeen)
	g.CreatedAt = fromMs(created)
	return g, nil
}

type gateRepo struct{ t *sqlTx }

func (r gateRepo) Get(ctx context.Context, id string) (types.Gate, error) {
	return queryOne(ctx, r.t, "get gate", scanGate,
		`SELECT `+gateCols+` FROM gates WHERE gate_id = ?;`, id)
}

func (r gateRepo) GetBySlug(ctx context.Context, slug string) (types.Gate, error) {
	return queryOne(ctx, r.t, "get gate by slug", scanGate,
		`SELECT `+gateCols+` FROM gates WHERE slug = ?;`, slug)
}

func (r gateRepo) List(ctx context.Context) ([]types.Gate, error) {
	return queryList(ctx, r.t, "list gates", scanGate,
		`SELECT `+gateCols+` FROM gates ORDER BY created_at_ms, rowid;`)
}

func (r gateRepo) Insert(ctx context.Context, g types.Gate) error {
	_, err := r.t.exec(ctx, `INSERT INTO gates(`+gateCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		g.ID, g.Name, g.Slug, string(g.MinRole), g.Location, boolInt(g.Active),
		nullStr(g.VenueID), nullStr(string(g.Direction)), nullMs(g.LastSeenAt), ms(g.CreatedAt))
	return mapErr("insert gate", err)
}

func (r gateRepo) Update(ctx context.Context, g types.Gate) error {
	return mapErr("update gate", r.t.execOne(ctx, `
UPDATE gates
SET name = ?, slug = ?, min_role = ?, location = ?, active = ?, venue_id = ?, direction = ?
WHERE gate_id = ?;`,
		g.Name, g.Slug, string(g.MinRole), g.Location, boolInt(g.Active),
		nullStr(g.VenueID), nullStr(string(g.Direction)), g.ID))
}

func (r gateRepo) Delete(ctx context.Context, id string) error {
	return mapErr("delete gate", r.t.execOne(ctx, `DELETE FROM gates WHERE gate_id = ?;`, id))
}

func (r gateRepo) UnlinkVenue(ctx context.Context, venueID string) error {
	_, err := r.t.exec(ctx, `UPDATE gates SET venue_id = NULL, direction = NULL WHERE venue_id = ?;`, venueID)
	return mapErr("unlink venue", err)
}

func (r gateRepo) MarkSeen(ctx context.Context, id string, t time.Time) error {
	return mapErr("mark gate seen", r.t.execOne(ctx,
		`UPDATE gates SET last_seen_at_ms = ? WHERE gate_id = ?;`, ms(t), id))
}
