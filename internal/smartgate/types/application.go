package types

import "time"

type ApplicationKind string

const (
	KindPass        ApplicationKind = "pass"
	KindRoleUpgrade ApplicationKind = "role_upgrade"
)

type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ApplicationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Application is a reviewable request carrying a kind-specific payload.
type Application[T any] struct {
	ID          string            `json:"id"`
	Kind        ApplicationKind   `json:"kind"`
	UserID      string            `json:"user_id"`
	Payload     T                 `json:"payload"`
	Status      ApplicationStatus `json:"status"`
	ReviewerID  string            `json:"reviewer_id,omitempty"`
	Note        string            `json:"note,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	ReviewedAt  *time.Time        `json:"reviewed_at,omitempty"`
}

type PassApplicationPayload struct {
	Role     Role     `json:"role"`
	PlanType PlanType `json:"plan_type"`
	Vehicles []string `json:"vehicles"`
}

type RoleUpgradePayload struct {
	TargetRole  Role     `json:"target_role"`
	Reason      string   `json:"reason,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type PassApplication = Application[PassApplicationPayload]
type RoleUpgradeRequest = Application[RoleUpgradePayload]
