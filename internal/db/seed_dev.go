package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// Guest tariff written when no rate row exists yet, in sen.
	GuestBaseCents      int64
	GuestPerMinuteCents int64
}

// SeedDev creates a starter venue and the default gates (outer lane open to
// guests, inner lane for staff and above, exit lane) if they are missing.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO parking_venues(venue_id, name, capacity, occupied, updated_at_ms)
VALUES ('VEN-MAIN', 'Main Car Park', 120, 0, ?);`, now); err != nil {
		return fmt.Errorf("seed parking_venues: %w", err)
	}

	gates := []struct {
		id, name, slug, minRole, location string
		venue, direction                  any
	}{
		{"GATE-OUTER", "Outer Gate", "outer", "guest", "Campus perimeter", "VEN-MAIN", "entry"},
		{"GATE-INNER", "Inner Gate", "inner", "staff", "Faculty block", nil, nil},
		{"GATE-EXIT", "Exit Gate", "exit", "guest", "Campus perimeter", "VEN-MAIN", "exit"},
	}
	for _, g := range gates {
		if _, err := db.ExecContext(ctx, `
INSERT INTO gates(gate_id, name, slug, min_role, location, active, venue_id, direction, created_at_ms)
VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
ON CONFLICT(gate_id) DO NOTHING;`,
			g.id, g.name, g.slug, g.minRole, g.location, g.venue, g.direction, now,
		); err != nil {
			return fmt.Errorf("seed gate %s: %w", g.slug, err)
		}
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO guest_rates(id, base_cents, per_minute_cents, updated_at_ms)
VALUES (1, ?, ?, ?);`, opt.GuestBaseCents, opt.GuestPerMinuteCents, now); err != nil {
		return fmt.Errorf("seed guest_rates: %w", err)
	}

	return nil
}
