package types

import (
	"math"
	"time"
)

type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

func (d Direction) Valid() bool { return d == DirectionEntry || d == DirectionExit }

// Soft failures recorded on an access event when a venue counter is clamped.
const (
	NoteVenueFull  = "venue_full"
	NoteVenueEmpty = "venue_empty"
)

type Venue struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	Occupied  int       `json:"occupied"`
	Percent   float64   `json:"percent"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParkingOverview is every venue plus campus-wide totals.
type ParkingOverview struct {
	Venues    []Venue `json:"venues"`
	Capacity  int     `json:"capacity"`
	Occupied  int     `json:"occupied"`
	Available int     `json:"available"`
	Percent   float64 `json:"percent"`
}

// WithPercent fills Percent from the counters, rounded to one decimal.
func (v Venue) WithPercent() Venue {
	v.Percent = 0
	if v.Capacity > 0 {
		v.Percent = math.Round(float64(v.Occupied)/float64(v.Capacity)*1000) / 10
	}
	return v
}

// Apply moves the counter one step in direction d, clamped to [0, capacity].
// The returned note is non-empty when the step was absorbed by a clamp.
func (v Venue) Apply(d Direction) (Venue, string) {
	switch d {
	case DirectionEntry:
		if v.Occupied >= v.Capacity {
			v.Occupied = v.Capacity
			return v, NoteVenueFull
		}
		v.Occupied++
	case DirectionExit:
		if v.Occupied <= 0 {
			v.Occupied = 0
			return v, NoteVenueEmpty
		}
		v.Occupied--
	}
	return v, ""
}

// Clamp forces occupied back into [0, capacity].
func (v Venue) Clamp() Venue {
	if v.Capacity < 0 {
		v.Capacity = 0
	}
	v.Occupied = max(0, min(v.Occupied, v.Capacity))
	return v
}
