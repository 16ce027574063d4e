package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smartgate/server/internal/auth"
	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// DirectoryService administers users and their vehicles and serves the
// client portal's enrolment and summary views.
type DirectoryService struct {
	store    store.Store
	opts     Options
	passApps *Workflow[types.PassApplicationPayload]
}

func NewDirectoryService(st store.Store, opts Options) *DirectoryService {
	opts = opts.withDefaults()
	return &DirectoryService{
		store:    st,
		opts:     opts,
		passApps: NewWorkflow[types.PassApplicationPayload](st, PassStrategy{Logger: opts.Logger}, opts),
	}
}

type UserInput struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name" validate:"required"`
	Email     string     `json:"email" validate:"required,email"`
	Phone     string     `json:"phone,omitempty"`
	Programme string     `json:"programme,omitempty"`
	Role      types.Role `json:"role,omitempty"`
	Password  string     `json:"password,omitempty" validate:"omitempty,min=8"`
}

func (d *DirectoryService) CreateUser(ctx context.Context, in UserInput) (types.User, error) {
	now := d.opts.now()
	u := types.User{ID: strings.TrimSpace(in.ID), CreatedAt: now}
	if u.ID == "" {
		u.ID = types.NewID("USR")
	}
	u, err := applyUserInput(u, in, now)
	if err != nil {
		return types.User{}, err
	}
	err = d.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return translate(tx.Users().Insert(ctx, u), nil, ErrDuplicate.With("user %s or email %s exists", u.ID, u.Email))
	})
	if err != nil {
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// UpdateUser replaces profile fields. An empty role keeps the current one
// and an empty password keeps the current hash.
func (d *DirectoryService) UpdateUser(ctx context.Context, id string, in UserInput) (types.User, error) {
	id = strings.TrimSpace(id)
	var out types.User
	err := d.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().Get(ctx, id)
		if err != nil {
			return translate(err, ErrUserNotFound.With("user %s", id), nil)
		}
		if out, err = applyUserInput(u, in, d.opts.now()); err != nil {
			return err
		}
		return translate(tx.Users().Update(ctx, out), nil, ErrDuplicate.With("email %s is taken", out.Email))
	})
	if err != nil {
		return types.User{}, fmt.Errorf("update user %s: %w", id, err)
	}
	return out, nil
}

// DeleteUser removes the user with their vehicles and passes. Ledger and
// payment history are kept.
func (d *DirectoryService) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := d.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return translate(tx.Users().Delete(ctx, id), ErrUserNotFound.With("user %s", id), nil)
	})
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

func (d *DirectoryService) GetUser(ctx context.Context, id string) (types.User, error) {
	id = strings.TrimSpace(id)
	var out types.User
	err := d.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Users().Get(ctx, id)
		return translate(err, ErrUserNotFound.With("user %s", id), nil)
	})
	if err != nil {
		return types.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return out, nil
}

func (d *DirectoryService) ListUsers(ctx context.Context) ([]types.User, error) {
	var out []types.User
	err := d.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Users().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

type VehicleInput struct {
	PlateText string `json:"plate_text" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
}

func (d *DirectoryService) CreateVehicle(ctx context.Context, in VehicleInput) (types.Vehicle, error) {
	v := types.Vehicle{ID: types.NewID("VEH"), CreatedAt: d.opts.now()}
	err := d.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if v, err = applyVehicleInput(ctx, tx, v, in); err != nil {
			return err
		}
		return translate(tx.Vehicles().Insert(ctx, v), ErrUserNotFound.With("user %s", v.UserID),
			ErrDuplicate.With("plate %s is already registered", v.PlateText))
	})
	if err != nil {
		return types.Vehicle{}, fmt.Errorf("create vehicle: %w", err)
	}
	return v, nil
}

func (d *DirectoryService) UpdateVehicle(ctx context.Context, id string, in VehicleInput) (types.Vehicle, error) {
	id = strings.TrimSpace(id)
	var out types.Vehicle
	err := d.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		v, err := tx.Vehicles().Get(ctx, id)
		if err != nil {
			return translate(err, ErrVehicleNotFound.With("vehicle %s", id), nil)
		}
		if out, err = applyVehicleInput(ctx, tx, v, in); err != nil {
			return err
		}
		return translate(tx.Vehicles().Update(ctx, out), ErrUserNotFound.With("user %s", out.UserID),
			ErrDuplicate.With("plate %s is already registered", out.PlateText))
	})
	if err != nil {
		return types.Vehicle{}, fmt.Errorf("update vehicle %s: %w", id, err)
	}
	return out, nil
}

func (d *DirectoryService) DeleteVehicle(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := d.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return translate(tx.Vehicles().Delete(ctx, id), ErrVehicleNotFound.With("vehicle %s", id), nil)
	})
	if err != nil {
		return fmt.Errorf("delete vehicle %s: %w", id, err)
	}
	return nil
}

// ListVehicles lists every vehicle, or only userID's when it is set.
func (d *DirectoryService) ListVehicles(ctx context.Context, userID string) ([]types.Vehicle, error) {
	userID = strings.TrimSpace(userID)
	var out []types.Vehicle
	err := d.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if userID != "" {
			out, err = tx.Vehicles().ListByUser(ctx, userID)
		} else {
			out, err = tx.Vehicles().List(ctx)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return out, nil
}

func applyUserInput(u types.User, in UserInput, now time.Time) (types.User, error) {
	if err := validateInput(in); err != nil {
		return u, err
	}
	if in.Role != "" {
		role, err := types.ParseRole(string(in.Role))
		if err != nil {
			return u, ErrInvalidRole.With("%v", err)
		}
		u.Role = role
	}
	if u.Role == "" {
		u.Role = types.RoleGuest
	}
	u.Name = strings.TrimSpace(in.Name)
	u.Email = strings.ToLower(strings.TrimSpace(in.Email))
	u.Phone = strings.TrimSpace(in.Phone)
	u.Programme = strings.TrimSpace(in.Programme)
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return u, err
		}
		u.PasswordHash = hash
	}
	u.UpdatedAt = now
	return u, nil
}

func applyVehicleInput(ctx context.Context, tx store.Tx, v types.Vehicle, in VehicleInput) (types.Vehicle, error) {
	if err := validateInput(in); err != nil {
		return v, err
	}
	v.PlateText = types.NormalizePlate(in.PlateText)
	if v.PlateText == "" {
		return v, ErrInvalidPlate
	}
	v.UserID = strings.TrimSpace(in.UserID)
	if _, err := tx.Users().Get(ctx, v.UserID); err != nil {
		return v, translate(err, ErrUserNotFound.With("user %s", v.UserID), nil)
	}
	return v, nil
}
