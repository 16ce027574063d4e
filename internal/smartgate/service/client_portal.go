package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// summaryTransactions caps the wallet lines returned with a client summary.
const summaryTransactions = 10

// Registration enrols a client: profile, vehicles and the pass applied for.
type Registration struct {
	Name      string         `json:"name" validate:"required"`
	Email     string         `json:"email" validate:"required,email"`
	Phone     string         `json:"phone,omitempty"`
	Programme string         `json:"programme,omitempty"`
	Role      types.Role     `json:"role,omitempty"`
	PlanType  types.PlanType `json:"plan_type,omitempty"`
	Vehicles  []string       `json:"vehicles"`
}

type RegistrationResult struct {
	User        types.User            `json:"user"`
	Pass        *types.Pass           `json:"pass,omitempty"`
	Vehicles    []types.Vehicle       `json:"vehicles"`
	Application types.PassApplication `json:"pass_application"`
}

// Register creates the user, or moves an existing user with the same email
// onto the requested role, then registers the vehicles and submits a pass
// application. Everything commits together or not at all.
func (d *DirectoryService) Register(ctx context.Context, in Registration) (RegistrationResult, error) {
	if err := validateInput(in); err != nil {
		return RegistrationResult{}, err
	}
	if in.Role == "" {
		in.Role = types.RoleStudent
	}
	if in.PlanType == "" {
		in.PlanType = types.PlanLongSemester
	}
	role, err := passRole(in.Role)
	if err != nil {
		return RegistrationResult{}, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var out RegistrationResult
	err = d.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		now := d.opts.now()
		u, found, err := findByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		switch {
		case !found:
			u, err = applyUserInput(types.User{ID: types.NewID("USR"), CreatedAt: now}, UserInput{
				Name: in.Name, Email: email, Phone: in.Phone, Programme: in.Programme, Role: role,
			}, now)
			if err != nil {
				return err
			}
			if err := tx.Users().Insert(ctx, u); err != nil {
				return translate(err, nil, ErrDuplicate.With("email %s exists", email))
			}
		case u.Role != role:
			u.Role = role
			u.UpdatedAt = now
			if err := tx.Users().Update(ctx, u); err != nil {
				return err
			}
		}
		out.User = u

		for _, raw := range in.Vehicles {
			if err := registerPlateTx(ctx, tx, u.ID, raw, now); err != nil {
				return err
			}
		}
		out.Application, err = d.passApps.submitTx(ctx, tx, u.ID, types.PassApplicationPayload{
			Role:     role,
			PlanType: in.PlanType,
			Vehicles: in.Vehicles,
		})
		if err != nil {
			return err
		}
		if out.Vehicles, err = tx.Vehicles().ListByUser(ctx, u.ID); err != nil {
			return err
		}
		out.Pass, err = latestPassTx(ctx, tx, u.ID)
		return err
	})
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("register %s: %w", email, err)
	}
	d.opts.Logger.Info("client registered", "user", out.User.ID, "role", role, "application", out.Application.ID)
	return out, nil
}

// ClientSummary is everything the client portal shows on its landing page.
type ClientSummary struct {
	User             types.User                 `json:"user"`
	Pass             *types.Pass                `json:"pass,omitempty"`
	Vehicles         []types.Vehicle            `json:"vehicles"`
	Wallet           types.WalletActivity       `json:"wallet"`
	GuestSessions    []types.GuestSession       `json:"guest_sessions"`
	RoleUpgrades     []types.RoleUpgradeRequest `json:"role_upgrades"`
	PassApplications []types.PassApplication    `json:"pass_applications"`
}

// Summary gathers a user's profile with their pass, vehicles, wallet, the
// guest sessions of their plates and their applications, newest first.
func (d *DirectoryService) Summary(ctx context.Context, userID string) (ClientSummary, error) {
	userID = strings.TrimSpace(userID)
	var out ClientSummary
	err := d.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if out.User, err = tx.Users().Get(ctx, userID); err != nil {
			return translate(err, ErrUserNotFound.With("user %s", userID), nil)
		}
		if out.Pass, err = latestPassTx(ctx, tx, userID); err != nil {
			return err
		}
		if out.Vehicles, err = tx.Vehicles().ListByUser(ctx, userID); err != nil {
			return err
		}
		if out.Wallet, err = activityTx(ctx, tx, userID, summaryTransactions, d.opts.Currency); err != nil {
			return err
		}
		if out.GuestSessions, err = plateSessionsTx(ctx, tx, out.Vehicles); err != nil {
			return err
		}
		if out.RoleUpgrades, err = userApplicationsTx[types.RoleUpgradePayload](ctx, tx, types.KindRoleUpgrade, userID); err != nil {
			return err
		}
		out.PassApplications, err = userApplicationsTx[types.PassApplicationPayload](ctx, tx, types.KindPass, userID)
		return err
	})
	if err != nil {
		return ClientSummary{}, fmt.Errorf("summary %s: %w", userID, err)
	}
	if out.Vehicles == nil {
		out.Vehicles = []types.Vehicle{}
	}
	return out, nil
}

func findByEmail(ctx context.Context, tx store.Tx, email string) (types.User, bool, error) {
	u, err := tx.Users().FindByLogin(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return types.User{}, false, nil
	case err != nil:
		return types.User{}, false, err
	}
	// FindByLogin also matches names; only an email hit counts here.
	return u, strings.EqualFold(u.Email, email), nil
}

// registerPlateTx adds plate to userID's vehicles. A plate the user already
// owns is left alone; one owned by someone else is a conflict.
func registerPlateTx(ctx context.Context, tx store.Tx, userID, raw string, now time.Time) error {
	plate := types.NormalizePlate(raw)
	if plate == "" {
		return nil
	}
	v, err := tx.Vehicles().GetByPlate(ctx, plate)
	switch {
	case err == nil && v.UserID == userID:
		return nil
	case err == nil:
		return ErrDuplicate.With("plate %s is already registered", plate)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	v = types.Vehicle{ID: types.NewID("VEH"), PlateText: plate, UserID: userID, CreatedAt: now}
	return translate(tx.Vehicles().Insert(ctx, v), nil, ErrDuplicate.With("plate %s is already registered", plate))
}

func latestPassTx(ctx context.Context, tx store.Tx, userID string) (*types.Pass, error) {
	passes, err := tx.Passes().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, ok := latestPass(passes)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func plateSessionsTx(ctx context.Context, tx store.Tx, vehicles []types.Vehicle) ([]types.GuestSession, error) {
	out := []types.GuestSession{}
	if len(vehicles) == 0 {
		return out, nil
	}
	all, err := tx.GuestSessions().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if slices.ContainsFunc(vehicles, func(v types.Vehicle) bool { return v.PlateText == s.PlateText }) {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b types.GuestSession) int { return b.StartTime.Compare(a.StartTime) })
	return out, nil
}

func userApplicationsTx[T any](ctx context.Context, tx store.Tx, kind types.ApplicationKind, userID string) ([]types.Application[T], error) {
	recs, err := tx.Applications().List(ctx, kind, "")
	if err != nil {
		return nil, err
	}
	out := []types.Application[T]{}
	for _, rec := range recs {
		if rec.UserID != userID {
			continue
		}
		app, err := fromRecord[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, nil
}
