package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// PassStrategy approves pass applications by registering the listed
// vehicles and issuing one unpaid pass that starts at approval time.
type PassStrategy struct {
	Logger *slog.Logger
}

func (PassStrategy) Kind() types.ApplicationKind { return types.KindPass }
func (PassStrategy) IDPrefix() string { return "APP" }
func (PassStrategy) Label() string { return "pass application" }

func (PassStrategy) Normalize(_ context.Context, _ store.Tx, _ string, p types.PassApplicationPayload) (types.PassApplicationPayload, error) {
	role, plan, err := passTerms(p.Role, p.PlanType)
	if err != nil {
		return p, err
	}
	plates := make([]string, 0, len(p.Vehicles))
	for _, v := range p.Vehicles {
		plate := types.NormalizePlate(v)
		if plate == "" || slices.Contains(plates, plate) {
			continue
		}
		plates = append(plates, plate)
	}
	return types.PassApplicationPayload{Role: role, PlanType: plan.Type, Vehicles: plates}, nil
}

func (s PassStrategy) Approve(ctx context.Context, tx store.Tx, app types.PassApplication, now time.Time) error {
	role, plan, err := passTerms(app.Payload.Role, app.Payload.PlanType)
	if err != nil {
		return err
	}
	for _, plate := range app.Payload.Vehicles {
		v, err := tx.Vehicles().GetByPlate(ctx, plate)
		switch {
		case err == nil && v.UserID == app.UserID:
			continue
		case err == nil:
			s.logger().Warn("plate registered to another user, skipping",
				"plate", plate, "application", app.ID, "owner", v.UserID)
			continue
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		if err := tx.Vehicles().Insert(ctx, types.Vehicle{
			ID:        types.NewID("VEH"),
			PlateText: plate,
			UserID:    app.UserID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	_, err = issuePassTx(ctx, tx, app.UserID, role, plan, now, now)
	return err
}

func (s PassStrategy) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// RoleUpgradeStrategy approves role changes. Approval sets the user's role
// and re-tags the user's latest pass with it.
type RoleUpgradeStrategy struct{}

func (RoleUpgradeStrategy) Kind() types.ApplicationKind { return types.KindRoleUpgrade }
func (RoleUpgradeStrategy) IDPrefix() string { return "UPG" }
func (RoleUpgradeStrategy) Label() string { return "role upgrade request" }

func (RoleUpgradeStrategy) Normalize(ctx context.Context, tx store.Tx, userID string, p types.RoleUpgradePayload) (types.RoleUpgradePayload, error) {
	target, err := types.ParseRole(string(p.TargetRole))
	if err != nil {
		return p, ErrInvalidRole.With("%v", err)
	}
	u, err := tx.Users().Get(ctx, userID)
	if err != nil {
		return p, translate(err, ErrUserNotFound.With("user %s", userID), nil)
	}
	if u.Role == target {
		return p, ErrInvalidRole.With("user already holds role %s", target)
	}
	p.TargetRole = target
	return p, nil
}

func (RoleUpgradeStrategy) Approve(ctx context.Context, tx store.Tx, app types.RoleUpgradeRequest, now time.Time) error {
	u, err := tx.Users().Get(ctx, app.UserID)
	if err != nil {
		return translate(err, ErrUserNotFound.With("user %s", app.UserID), nil)
	}
	u.Role = app.Payload.TargetRole
	u.UpdatedAt = now
	if err := tx.Users().Update(ctx, u); err != nil {
		return err
	}
	if u.Role == types.RoleGuest {
		return nil
	}
	passes, err := tx.Passes().ListByUser(ctx, app.UserID)
	if err != nil || len(passes) == 0 {
		return err
	}
	latest := passes[0]
	latest.Role = u.Role
	return tx.Passes().Update(ctx, latest)
}
