package types

import (
	"fmt"
	"time"
)

type PlanType string

const (
	PlanShortSemester PlanType = "short_semester"
	PlanLongSemester  PlanType = "long_semester"
	PlanAnnual        PlanType = "annual"
)

type Plan struct {
	Type         PlanType `json:"plan_type"`
	Label        string   `json:"label"`
	DurationDays int      `json:"duration_days"`
	Price        Cents    `json:"price_cents"`
}

var plans = []Plan{
	{Type: PlanShortSemester, Label: "Short Semester (50 days)", DurationDays: 50, Price: 3000},
	{Type: PlanLongSemester, Label: "Long Semester (100 days)", DurationDays: 100, Price: 5000},
	{Type: PlanAnnual, Label: "Annual (365 days)", DurationDays: 365, Price: 12000},
}

// Plans returns the static plan catalog.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

func LookupPlan(t PlanType) (Plan, error) {
	for _, p := range plans {
		if p.Type == t {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("unknown plan %q", t)
}

// Window returns the validity window of a pass on this plan starting at start.
func (p Plan) Window(start time.Time) (time.Time, time.Time) {
	start = start.UTC()
	return start, start.AddDate(0, 0, p.DurationDays)
}

type Pass struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Role      Role       `json:"role"`
	PlanType  PlanType   `json:"plan_type"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   time.Time  `json:"valid_to"`
	Price     Cents      `json:"price_cents"`
	Paid      bool       `json:"is_paid"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ActiveAt reports whether the pass grants access at t: paid and
// valid_from <= t < valid_to.
func (p Pass) ActiveAt(t time.Time) bool {
	return p.Paid && !t.Before(p.ValidFrom) && t.Before(p.ValidTo)
}
