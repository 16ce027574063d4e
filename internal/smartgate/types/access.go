package types

import "time"

type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionDeny  Decision = "DENY"
	DecisionGuest Decision = "GUEST"
)

// Reason codes carried on every decision.
const (
	ReasonRoleSatisfied    = "role_satisfied"
	ReasonInsufficientRole = "insufficient_role"
	ReasonLowConfidence    = "low_confidence"
	ReasonNoActivePass     = "no_active_pass"
	ReasonUnknownPlate     = "unknown_plate"
	ReasonUnknownGate      = "unknown_gate"
	ReasonGateInactive     = "gate_inactive"
	ReasonGuestSession     = "guest_session"
)

// Details refining ReasonNoActivePass.
const (
	DetailNoPass         = "no_pass"
	DetailPassUnpaid     = "pass_unpaid"
	DetailPassExpired    = "pass_expired"
	DetailPassNotStarted = "pass_not_started"
)

// UnknownPlate is recorded when the recognizer cannot read a frame.
const UnknownPlate = "UNKNOWN"

type Override struct {
	UserID string `json:"user_id" validate:"required"`
}

type AccessRequest struct {
	Gate        string     `json:"gate" validate:"required"`
	PlateText   string     `json:"plate_text,omitempty"`
	Confidence  float64    `json:"confidence" validate:"gte=0,lte=1"`
	ImageBase64 string     `json:"image_base64,omitempty"`
	Override    *Override  `json:"override,omitempty"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
}

type AccessDecision struct {
	Decision       Decision `json:"decision"`
	Reason         string   `json:"reason"`
	Detail         string   `json:"detail,omitempty"`
	Role           Role     `json:"role,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	PassID         string   `json:"pass_id,omitempty"`
	GuestSessionID string   `json:"guest_session_id,omitempty"`
	VenueID        string   `json:"venue_id,omitempty"`
	VenueNote      string   `json:"venue_note,omitempty"`
}

// AccessEvent is the immutable audit record of one decision.
type AccessEvent struct {
	ID             string     `json:"id"`
	PlateText      string     `json:"plate_text"`
	Confidence     float64    `json:"confidence"`
	Decision       Decision   `json:"decision"`
	Role           Role       `json:"role,omitempty"`
	Reason         string     `json:"reason"`
	Detail         string     `json:"detail,omitempty"`
	GateSlug       string     `json:"gate"`
	GateID         string     `json:"gate_id,omitempty"`
	UserID         string     `json:"user_id,omitempty"`
	GuestSessionID string     `json:"guest_session_id,omitempty"`
	VenueID        string     `json:"venue_id,omitempty"`
	VenueNote      string     `json:"venue_note,omitempty"`
	RequestedAt    *time.Time `json:"requested_at,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

type AccessResult struct {
	Decision AccessDecision `json:"decision"`
	Event    AccessEvent    `json:"event"`
}
