package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// ApprovalStrategy supplies the kind-specific parts of an application:
// payload validation and the side effect of approval. Both run inside the
// workflow's transaction.
type ApprovalStrategy[T any] interface {
	Kind() types.ApplicationKind
	IDPrefix() string
	// Normalize validates payload for userID and returns its canonical form.
	Normalize(ctx context.Context, tx store.Tx, userID string, payload T) (T, error)
	// Approve applies the approval side effect.
	Approve(ctx context.Context, tx store.Tx, app types.Application[T], now time.Time) error
	// Label names an application in notifications, e.g. "pass application".
	Label() string
}

// Workflow moves applications from pending to a terminal status exactly once.
type Workflow[T any] struct {
	store    store.Store
	strategy ApprovalStrategy[T]
	opts     Options
}

func NewWorkflow[T any](st store.Store, strategy ApprovalStrategy[T], opts Options) *Workflow[T] {
	return &Workflow[T]{store: st, strategy: strategy, opts: opts.withDefaults()}
}

func (w *Workflow[T]) Submit(ctx context.Context, userID string, payload T) (types.Application[T], error) {
	var out types.Application[T]
	err := w.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = w.submitTx(ctx, tx, userID, payload)
		return err
	})
	if err != nil {
		return types.Application[T]{}, fmt.Errorf("submit %s: %w", w.strategy.Label(), err)
	}
	return out, nil
}

// submitTx records a pending application inside an existing transaction.
func (w *Workflow[T]) submitTx(ctx context.Context, tx store.Tx, userID string, payload T) (types.Application[T], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return types.Application[T]{}, ErrInvalidInput.With("user_id is required")
	}
	if _, err := tx.Users().Get(ctx, userID); err != nil {
		return types.Application[T]{}, translate(err, ErrUserNotFound.With("user %s", userID), nil)
	}
	norm, err := w.strategy.Normalize(ctx, tx, userID, payload)
	if err != nil {
		return types.Application[T]{}, err
	}
	now := w.opts.now()
	out := types.Application[T]{
		ID:          types.NewID(w.strategy.IDPrefix()),
		Kind:        w.strategy.Kind(),
		UserID:      userID,
		Payload:     norm,
		Status:      types.StatusPending,
		SubmittedAt: now,
	}
	rec, err := toRecord(out)
	if err != nil {
		return types.Application[T]{}, err
	}
	if err := tx.Applications().Insert(ctx, rec); err != nil {
		return types.Application[T]{}, err
	}
	err = notify(ctx, tx, userID, fmt.Sprintf("Your %s %s was received and is pending review.",
		w.strategy.Label(), out.ID), now)
	return out, err
}

// Decide records the reviewer's verdict. Only pending applications can be
// decided; approval runs the strategy side effect in the same transaction.
func (w *Workflow[T]) Decide(ctx context.Context, id string, status types.ApplicationStatus, reviewerID, note string) (types.Application[T], error) {
	if !status.Terminal() {
		return types.Application[T]{}, ErrInvalidStatus
	}
	id = strings.TrimSpace(id)
	note = strings.TrimSpace(note)

	var out types.Application[T]
	err := w.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.Applications().Get(ctx, w.strategy.Kind(), id)
		if err != nil {
			return translate(err, ErrApplicationNotFound.With("%s %s", w.strategy.Label(), id), nil)
		}
		if rec.Status != types.StatusPending {
			return ErrAlreadyReviewed.With("%s %s is already %s", w.strategy.Label(), id, rec.Status)
		}
		app, err := fromRecord[T](rec)
		if err != nil {
			return err
		}
		now := w.opts.now()
		if status == types.StatusApproved {
			if err := w.strategy.Approve(ctx, tx, app, now); err != nil {
				return err
			}
		}
		app.Status = status
		app.ReviewerID = strings.TrimSpace(reviewerID)
		app.Note = note
		app.ReviewedAt = &now
		if rec, err = toRecord(app); err != nil {
			return err
		}
		if err := tx.Applications().Update(ctx, rec); err != nil {
			return err
		}
		out = app
		msg := note
		if msg == "" {
			msg = fmt.Sprintf("Your %s %s was %s.", w.strategy.Label(), app.ID, status)
		}
		return notify(ctx, tx, app.UserID, msg, now)
	})
	if err != nil {
		return types.Application[T]{}, fmt.Errorf("decide %s %s: %w", w.strategy.Label(), id, err)
	}
	w.opts.Logger.Info("application decided", "kind", w.strategy.Kind(), "id", id, "status", status, "reviewer", reviewerID)
	return out, nil
}

func (w *Workflow[T]) Get(ctx context.Context, id string) (types.Application[T], error) {
	id = strings.TrimSpace(id)
	var out types.Application[T]
	err := w.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.Applications().Get(ctx, w.strategy.Kind(), id)
		if err != nil {
			return translate(err, ErrApplicationNotFound.With("%s %s", w.strategy.Label(), id), nil)
		}
		out, err = fromRecord[T](rec)
		return err
	})
	if err != nil {
		return types.Application[T]{}, fmt.Errorf("get %s %s: %w", w.strategy.Label(), id, err)
	}
	return out, nil
}

// List returns applications newest first. An empty status matches all.
func (w *Workflow[T]) List(ctx context.Context, status types.ApplicationStatus) ([]types.Application[T], error) {
	var out []types.Application[T]
	err := w.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		recs, err := tx.Applications().List(ctx, w.strategy.Kind(), status)
		if err != nil {
			return err
		}
		out = make([]types.Application[T], 0, len(recs))
		for _, rec := range recs {
			app, err := fromRecord[T](rec)
			if err != nil {
				return err
			}
			out = append(out, app)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", w.strategy.Label(), err)
	}
	return out, nil
}

func toRecord[T any](app types.Application[T]) (store.ApplicationRecord, error) {
	payload, err := json.Marshal(app.Payload)
	if err != nil {
		return store.ApplicationRecord{}, fmt.Errorf("encode payload: %w", err)
	}
	return store.ApplicationRecord{
		ID:          app.ID,
		Kind:        app.Kind,
		UserID:      app.UserID,
		Payload:     payload,
		Status:      app.Status,
		ReviewerID:  app.ReviewerID,
		Note:        app.Note,
		SubmittedAt: app.SubmittedAt,
		ReviewedAt:  app.ReviewedAt,
	}, nil
}

func fromRecord[T any](rec store.ApplicationRecord) (types.Application[T], error) {
	var payload T
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return types.Application[T]{}, fmt.Errorf("decode payload of %s: %w", rec.ID, err)
		}
	}
	return types.Application[T]{
		ID:          rec.ID,
		Kind:        rec.Kind,
		UserID:      rec.UserID,
		Payload:     payload,
		Status:      rec.Status,
		ReviewerID:  rec.ReviewerID,
		Note:        rec.Note,
		SubmittedAt: rec.SubmittedAt,
		ReviewedAt:  rec.ReviewedAt,
	}, nil
}
