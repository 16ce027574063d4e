package types

import "time"

type Gate struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Slug       string     `json:"slug"`
	MinRole    Role       `json:"min_role"`
	Location   string     `json:"location,omitempty"`
	Active     bool       `json:"active"`
	VenueID    string     `json:"venue_id,omitempty"`
	Direction  Direction  `json:"direction,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
