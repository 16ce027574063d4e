package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// PassRegistry issues and settles time-bounded passes from the plan catalog.
type PassRegistry struct {
	store store.Store
	opts  Options
}

func NewPassRegistry(st store.Store, opts Options) *PassRegistry {
	return &PassRegistry{store: st, opts: opts.withDefaults()}
}

func (r *PassRegistry) Plans() []types.Plan { return types.Plans() }

type IssueRequest struct {
	UserID   string         `json:"user_id" validate:"required"`
	Role     types.Role     `json:"role" validate:"required"`
	PlanType types.PlanType `json:"plan_type" validate:"required"`
	StartsAt *time.Time     `json:"starts_at,omitempty"`
}

// Issue creates an unpaid pass and tells the holder what is due.
func (r *PassRegistry) Issue(ctx context.Context, req IssueRequest) (types.Pass, error) {
	if err := validateInput(req); err != nil {
		return types.Pass{}, err
	}
	role, plan, err := passTerms(req.Role, req.PlanType)
	if err != nil {
		return types.Pass{}, err
	}
	userID := strings.TrimSpace(req.UserID)

	var out types.Pass
	err = r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		now := r.opts.now()
		start := now
		if req.StartsAt != nil {
			start = *req.StartsAt
		}
		var err error
		out, err = issuePassTx(ctx, tx, userID, role, plan, start, now)
		return err
	})
	if err != nil {
		return types.Pass{}, fmt.Errorf("issue pass for %s: %w", userID, err)
	}
	r.opts.Logger.Info("pass issued", "pass", out.ID, "user", userID, "plan", out.PlanType)
	return out, nil
}

type PassUpdate struct {
	Role     *types.Role     `json:"role,omitempty"`
	PlanType *types.PlanType `json:"plan_type,omitempty"`
	StartsAt *time.Time      `json:"starts_at,omitempty"`
	ValidTo  *time.Time      `json:"valid_to,omitempty"`
}

// Update is an administrative override. Changing the plan or the start
// recomputes window and price and marks the pass unpaid again.
func (r *PassRegistry) Update(ctx context.Context, id string, u PassUpdate) (types.Pass, error) {
	id = strings.TrimSpace(id)
	var out types.Pass
	err := r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Passes().Get(ctx, id)
		if err != nil {
			return translate(err, ErrPassNotFound.With("pass %s", id), nil)
		}
		if u.Role != nil {
			role, err := passRole(*u.Role)
			if err != nil {
				return err
			}
			p.Role = role
		}
		if u.PlanType != nil || u.StartsAt != nil {
			planType := p.PlanType
			if u.PlanType != nil {
				planType = *u.PlanType
			}
			plan, err := types.LookupPlan(planType)
			if err != nil {
				return ErrInvalidPlan.With("%v", err)
			}
			start := p.ValidFrom
			if u.StartsAt != nil {
				start = *u.StartsAt
			}
			p.PlanType = plan.Type
			p.ValidFrom, p.ValidTo = plan.Window(start)
			p.Price = plan.Price
			p.Paid = false
			p.PaidAt = nil
		}
		if u.ValidTo != nil {
			p.ValidTo = u.ValidTo.UTC()
		}
		if !p.ValidFrom.Before(p.ValidTo) {
			return ErrInvalidWindow
		}
		out = p
		return tx.Passes().Update(ctx, p)
	})
	if err != nil {
		return types.Pass{}, fmt.Errorf("update pass %s: %w", id, err)
	}
	return out, nil
}

func (r *PassRegistry) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return translate(tx.Passes().Delete(ctx, id), ErrPassNotFound.With("pass %s", id), nil)
	})
	if err != nil {
		return fmt.Errorf("delete pass %s: %w", id, err)
	}
	return nil
}

// PayInvoice settles an unpaid pass from the owner's wallet. The debit,
// the paid flag, the payment record and the notification commit together.
// An already paid pass is returned unchanged.
func (r *PassRegistry) PayInvoice(ctx context.Context, passID, userID string) (types.Pass, error) {
	passID = strings.TrimSpace(passID)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return types.Pass{}, ErrInvalidInput.With("user_id is required")
	}
	unlock := r.opts.Locks.User(userID)
	defer unlock()

	var out types.Pass
	err := r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Passes().Get(ctx, passID)
		if err != nil {
			return translate(err, ErrPassNotFound.With("pass %s", passID), nil)
		}
		if p.UserID != userID {
			return ErrPassNotOwned
		}
		out = p
		if p.Paid {
			return nil
		}
		now := r.opts.now()
		ref := ""
		if p.Price > 0 {
			txn, err := debitTx(ctx, tx, Entry{
				UserID:      userID,
				Amount:      p.Price,
				Type:        types.TxPassPayment,
				Description: "Pass " + p.ID + " (" + string(p.PlanType) + ")",
				Source:      types.SourceWallet,
				Reference:   p.ID,
			}, now)
			if err != nil {
				return err
			}
			ref = txn.ID
		}
		p.Paid = true
		p.PaidAt = &now
		if err := tx.Passes().Update(ctx, p); err != nil {
			return err
		}
		if err := tx.Payments().Insert(ctx, types.Payment{
			ID:        types.NewID("PAY"),
			Amount:    p.Price,
			Status:    types.PaymentSucceeded,
			Processor: types.SourceWallet,
			Currency:  r.opts.Currency,
			PassID:    p.ID,
			Reference: ref,
			Timestamp: now,
		}); err != nil {
			return err
		}
		out = p
		return notify(ctx, tx, userID, fmt.Sprintf("Payment received for pass %s. It is valid until %s.",
			p.ID, p.ValidTo.Format("2006-01-02")), now)
	})
	if err != nil {
		return types.Pass{}, fmt.Errorf("pay pass %s: %w", passID, err)
	}
	return out, nil
}

func (r *PassRegistry) Get(ctx context.Context, id string) (types.Pass, error) {
	id = strings.TrimSpace(id)
	var out types.Pass
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Passes().Get(ctx, id)
		return translate(err, ErrPassNotFound.With("pass %s", id), nil)
	})
	if err != nil {
		return types.Pass{}, fmt.Errorf("get pass %s: %w", id, err)
	}
	return out, nil
}

func (r *PassRegistry) ListByUser(ctx context.Context, userID string) ([]types.Pass, error) {
	var out []types.Pass
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Passes().ListByUser(ctx, strings.TrimSpace(userID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list passes for %s: %w", userID, err)
	}
	return out, nil
}

func (r *PassRegistry) List(ctx context.Context) ([]types.Pass, error) {
	var out []types.Pass
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Passes().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	return out, nil
}

func passRole(role types.Role) (types.Role, error) {
	r, err := types.ParseRole(string(role))
	if err != nil {
		return "", ErrInvalidRole.With("%v", err)
	}
	if r == types.RoleGuest {
		return "", ErrInvalidRole.With("guests cannot hold a pass")
	}
	return r, nil
}

func passTerms(role types.Role, planType types.PlanType) (types.Role, types.Plan, error) {
	r, err := passRole(role)
	if err != nil {
		return "", types.Plan{}, err
	}
	plan, err := types.LookupPlan(types.PlanType(strings.ToLower(strings.TrimSpace(string(planType)))))
	if err != nil {
		return "", types.Plan{}, ErrInvalidPlan.With("%v", err)
	}
	return r, plan, nil
}

// issuePassTx inserts an unpaid pass starting at start and notifies the
// holder of the amount due.
func issuePassTx(ctx context.Context, tx store.Tx, userID string, role types.Role, plan types.Plan, start, now time.Time) (types.Pass, error) {
	if _, err := tx.Users().Get(ctx, userID); err != nil {
		return types.Pass{}, translate(err, ErrUserNotFound.With("user %s", userID), nil)
	}
	from, to := plan.Window(start)
	p := types.Pass{
		ID:        types.NewID("PASS"),
		UserID:    userID,
		Role:      role,
		PlanType:  plan.Type,
		ValidFrom: from,
		ValidTo:   to,
		Price:     plan.Price,
		CreatedAt: now,
	}
	if err := tx.Passes().Insert(ctx, p); err != nil {
		return types.Pass{}, translate(err, ErrUserNotFound.With("user %s", userID), nil)
	}
	msg := fmt.Sprintf("Pass %s issued on the %s plan. RM%s is due from your wallet.", p.ID, plan.Label, p.Price)
	if err := notify(ctx, tx, userID, msg, now); err != nil {
		return types.Pass{}, err
	}
	return p, nil
}
