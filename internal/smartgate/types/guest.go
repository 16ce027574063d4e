package types

import "time"

type GuestStatus string

const (
	GuestOpen   GuestStatus = "open"
	GuestClosed GuestStatus = "closed"
	GuestPaid   GuestStatus = "paid"
)

type GuestSession struct {
	ID        string      `json:"id"`
	PlateText string      `json:"plate_text"`
	StartTime time.Time   `json:"start_time"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	Minutes   *int        `json:"minutes,omitempty"`
	Fee       *Cents      `json:"fee_cents,omitempty"`
	Status    GuestStatus `json:"status"`
}

// GuestRate is the pay-per-minute tariff read when a session closes.
type GuestRate struct {
	Base      Cents     `json:"base_rate_cents"`
	PerMinute Cents     `json:"per_minute_rate_cents"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Fee prices a stay of the given billable minutes.
func (r GuestRate) Fee(minutes int) Cents {
	if minutes < 0 {
		minutes = 0
	}
	return r.Base + r.PerMinute*Cents(minutes)
}

// BillableMinutes rounds the elapsed time up to whole minutes.
func BillableMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

// GuestLookup is a session plus what it would cost to settle it now.
type GuestLookup struct {
	Session   GuestSession `json:"session"`
	Minutes   int          `json:"minutes"`
	AmountDue Cents        `json:"amount_due_cents"`
}

// GuestPayment is the outcome of one settlement attempt.
type GuestPayment struct {
	Session GuestSession `json:"session"`
	Payment Payment      `json:"payment"`
}
