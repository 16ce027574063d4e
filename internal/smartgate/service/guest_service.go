package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smartgate/server/internal/cache"
	"github.com/smartgate/server/internal/payment"
	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// GuestService runs pay-per-minute sessions for unregistered plates:
// open -> closed -> paid.
type GuestService struct {
	store       store.Store
	processors  *payment.Registry
	cache       cache.Cache
	defaultRate types.GuestRate
	opts        Options
}

// NewGuestService builds the service. defaultRate prices sessions until an
// administrator stores a rate. c may be nil.
func NewGuestService(st store.Store, processors *payment.Registry, c cache.Cache, defaultRate types.GuestRate, opts Options) *GuestService {
	return &GuestService{
		store:       st,
		processors:  processors,
		cache:       c,
		defaultRate: defaultRate,
		opts:        opts.withDefaults(),
	}
}

// Open returns the plate's open session, creating one when there is none.
func (s *GuestService) Open(ctx context.Context, plate string) (types.GuestSession, error) {
	plate = types.NormalizePlate(plate)
	if plate == "" {
		return types.GuestSession{}, ErrInvalidPlate
	}
	unlock := s.opts.Locks.Plate(plate)
	defer unlock()

	var out types.GuestSession
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = openGuestTx(ctx, tx, plate, s.opts.now())
		return err
	})
	if err != nil {
		return types.GuestSession{}, fmt.Errorf("open guest session %s: %w", plate, err)
	}
	s.remember(ctx, out)
	return out, nil
}

// Close ends an open session and prices it with the rate in force now.
func (s *GuestService) Close(ctx context.Context, sessionID string) (types.GuestSession, error) {
	sess, err := s.get(ctx, sessionID)
	if err != nil {
		return types.GuestSession{}, err
	}
	unlock := s.opts.Locks.Plate(sess.PlateText)
	defer unlock()

	err = s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GuestSessions().Get(ctx, sess.ID)
		if err != nil {
			return translate(err, ErrSessionNotFound, nil)
		}
		if cur.Status != types.GuestOpen {
			return ErrInvalidSessionState.With("session %s is %s, not open", cur.ID, cur.Status)
		}
		rate, err := rateTx(ctx, tx, s.defaultRate)
		if err != nil {
			return err
		}
		end := s.opts.now()
		minutes := types.BillableMinutes(cur.StartTime, end)
		fee := rate.Fee(minutes)
		cur.EndTime = &end
		cur.Minutes = &minutes
		cur.Fee = &fee
		cur.Status = types.GuestClosed
		sess = cur
		return tx.GuestSessions().Update(ctx, cur)
	})
	if err != nil {
		return types.GuestSession{}, fmt.Errorf("close guest session %s: %w", sessionID, err)
	}
	s.remember(ctx, sess)
	return sess, nil
}

type PayRequest struct {
	SessionID string
	// Amount overrides the session fee when set; it must be positive.
	Amount *types.Cents
	// Source is "wallet" or the name of a registered processor.
	Source string
	// UserID is required for wallet payments.
	UserID string
}

// Pay settles a closed session. A processor failure records a failed
// Payment, leaves the session closed and returns ErrPaymentFailed together
// with that Payment so the caller can retry. Paying a session that is
// already paid returns the settled result again without charging.
func (s *GuestService) Pay(ctx context.Context, req PayRequest) (types.GuestPayment, error) {
	source := strings.ToLower(strings.TrimSpace(req.Source))
	if source == "" {
		source = types.SourceTouchNGo
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return types.GuestPayment{}, ErrInvalidAmount
	}

	sess, err := s.get(ctx, req.SessionID)
	if err != nil {
		return types.GuestPayment{}, err
	}
	unlock := s.opts.Locks.Plate(sess.PlateText)
	defer unlock()

	if settled, ok, err := s.settled(ctx, sess.ID); err != nil || ok {
		return settled, err
	}
	if source == types.SourceWallet {
		return s.payFromWallet(ctx, sess.ID, req)
	}
	proc, ok := s.processors.Get(source)
	if !ok {
		return types.GuestPayment{}, ErrUnsupportedSource.With("no processor for %q", source)
	}
	return s.payWithProcessor(ctx, sess.ID, req, proc)
}

func (s *GuestService) payFromWallet(ctx context.Context, sessionID string, req PayRequest) (types.GuestPayment, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return types.GuestPayment{}, ErrInvalidInput.With("user_id is required for wallet payments")
	}
	unlock := s.opts.Locks.User(userID)
	defer unlock()

	var out types.GuestPayment
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := payableSessionTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		amount := amountDue(sess, req.Amount)
		now := s.opts.now()
		txn, err := debitTx(ctx, tx, Entry{
			UserID:      userID,
			Amount:      amount,
			Type:        types.TxGuestPayment,
			Description: "Guest parking " + sess.PlateText,
			Source:      types.SourceWallet,
			Reference:   sess.ID,
		}, now)
		if err != nil {
			return err
		}
		p := types.Payment{
			ID:        types.NewID("PAY"),
			Amount:    amount,
			Status:    types.PaymentSucceeded,
			Processor: types.SourceWallet,
			Currency:  s.opts.Currency,
			SessionID: sess.ID,
			Reference: txn.ID,
			Timestamp: now,
		}
		if err := tx.Payments().Insert(ctx, p); err != nil {
			return err
		}
		sess.Status = types.GuestPaid
		out = types.GuestPayment{Session: sess, Payment: p}
		return tx.GuestSessions().Update(ctx, sess)
	})
	if err != nil {
		return types.GuestPayment{}, fmt.Errorf("pay guest session %s: %w", sessionID, err)
	}
	s.remember(ctx, out.Session)
	return out, nil
}

func (s *GuestService) payWithProcessor(ctx context.Context, sessionID string, req PayRequest, proc payment.Processor) (types.GuestPayment, error) {
	var sess types.GuestSession
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		sess, err = payableSessionTx(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return types.GuestPayment{}, fmt.Errorf("pay guest session %s: %w", sessionID, err)
	}
	amount := amountDue(sess, req.Amount)

	receipt, chargeErr := chargeWithTimeout(ctx, proc, payment.ChargeRequest{
		Amount:      amount,
		Currency:    s.opts.Currency,
		Reference:   "guest:" + sess.ID,
		Description: "Guest parking " + sess.PlateText,
		Metadata:    map[string]string{"plate": sess.PlateText},
	}, s.opts.ProcessorTimeout)

	// The charge is final once the processor answers; the attempt is
	// recorded even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	p := types.Payment{
		ID:        types.NewID("PAY"),
		Amount:    amount,
		Processor: proc.Name(),
		Currency:  s.opts.Currency,
		SessionID: sess.ID,
		Timestamp: s.opts.now(),
	}
	if chargeErr != nil {
		p.Status = types.PaymentFailed
		p.FailureReason = chargeErr.Error()
		s.opts.Logger.Warn("guest payment failed", "session", sess.ID, "processor", proc.Name(), "err", chargeErr)
		err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.Payments().Insert(ctx, p)
		})
		if err != nil {
			return types.GuestPayment{}, fmt.Errorf("record failed payment %s: %w", sess.ID, errors.Join(err, chargeErr))
		}
		return types.GuestPayment{Session: sess, Payment: p}, ErrPaymentFailed.With("%v", chargeErr)
	}

	p.Status = types.PaymentSucceeded
	p.Reference = receipt.Reference
	if receipt.Currency != "" {
		p.Currency = receipt.Currency
	}
	var out types.GuestPayment
	err = s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := payableSessionTx(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		if err := tx.Payments().Insert(ctx, p); err != nil {
			return err
		}
		cur.Status = types.GuestPaid
		out = types.GuestPayment{Session: cur, Payment: p}
		return tx.GuestSessions().Update(ctx, cur)
	})
	if err != nil {
		s.opts.Logger.Error("charged but could not settle session", "session", sess.ID, "reference", p.Reference, "err", err)
		return types.GuestPayment{}, fmt.Errorf("settle guest session %s: %w", sess.ID, err)
	}
	s.remember(ctx, out.Session)
	return out, nil
}

// settled returns the session and its succeeded Payment when the session is
// already paid.
func (s *GuestService) settled(ctx context.Context, sessionID string) (types.GuestPayment, bool, error) {
	var (
		out types.GuestPayment
		ok  bool
	)
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := tx.GuestSessions().Get(ctx, sessionID)
		if err != nil {
			return translate(err, ErrSessionNotFound.With("session %s", sessionID), nil)
		}
		if sess.Status != types.GuestPaid {
			return nil
		}
		payments, err := tx.Payments().ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Status == types.PaymentSucceeded {
				out, ok = types.GuestPayment{Session: sess, Payment: p}, true
				return nil
			}
		}
		return ErrInvalidSessionState.With("session %s is paid but has no settled payment", sessionID)
	})
	if err != nil {
		return types.GuestPayment{}, false, fmt.Errorf("pay guest session %s: %w", sessionID, err)
	}
	return out, ok, nil
}

// LookupQuery selects a session by id or by plate. The id wins when both
// are set.
type LookupQuery struct {
	SessionID string
	Plate     string
}

// Lookup reports a session and what it would cost to settle now. Open
// sessions are priced from the current time without being modified.
func (s *GuestService) Lookup(ctx context.Context, q LookupQuery) (types.GuestLookup, error) {
	var sess types.GuestSession
	switch {
	case strings.TrimSpace(q.SessionID) != "":
		var err error
		if sess, err = s.get(ctx, q.SessionID); err != nil {
			return types.GuestLookup{}, err
		}
	case types.NormalizePlate(q.Plate) != "":
		var err error
		if sess, err = s.byPlate(ctx, types.NormalizePlate(q.Plate)); err != nil {
			return types.GuestLookup{}, err
		}
	default:
		return types.GuestLookup{}, ErrInvalidInput.With("session_id or plate is required")
	}

	out := types.GuestLookup{Session: sess}
	switch sess.Status {
	case types.GuestOpen:
		rate, err := s.Rate(ctx)
		if err != nil {
			return types.GuestLookup{}, err
		}
		out.Minutes = types.BillableMinutes(sess.StartTime, s.opts.now())
		out.AmountDue = rate.Fee(out.Minutes)
	case types.GuestClosed:
		out.Minutes = derefOr(sess.Minutes, 0)
		out.AmountDue = derefOr(sess.Fee, 0)
	case types.GuestPaid:
		out.Minutes = derefOr(sess.Minutes, 0)
	}
	return out, nil
}

func (s *GuestService) byPlate(ctx context.Context, plate string) (types.GuestSession, error) {
	if s.cache != nil {
		var cached types.GuestSession
		ok, err := s.cache.GetJSON(ctx, cache.GuestSessionKey(plate), &cached)
		if err != nil {
			s.opts.Logger.Warn("guest session cache read failed", "plate", plate, "err", err)
		} else if ok {
			return cached, nil
		}
	}
	var out types.GuestSession
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GuestSessions().FindOpenByPlate(ctx, plate)
		if errors.Is(err, store.ErrNotFound) {
			out, err = tx.GuestSessions().FindLatestByPlate(ctx, plate)
		}
		return translate(err, ErrSessionNotFound.With("no session for plate %s", plate), nil)
	})
	if err != nil {
		return types.GuestSession{}, fmt.Errorf("lookup plate %s: %w", plate, err)
	}
	return out, nil
}

// Rate returns the stored tariff, or the default when none was stored.
func (s *GuestService) Rate(ctx context.Context) (types.GuestRate, error) {
	var out types.GuestRate
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = rateTx(ctx, tx, s.defaultRate)
		return err
	})
	if err != nil {
		return types.GuestRate{}, fmt.Errorf("guest rate: %w", err)
	}
	return out, nil
}

func (s *GuestService) SetRate(ctx context.Context, base, perMinute types.Cents) (types.GuestRate, error) {
	if base < 0 || perMinute < 0 {
		return types.GuestRate{}, ErrInvalidRate
	}
	r := types.GuestRate{Base: base, PerMinute: perMinute, UpdatedAt: s.opts.now()}
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.GuestRate().Put(ctx, r)
	})
	if err != nil {
		return types.GuestRate{}, fmt.Errorf("set guest rate: %w", err)
	}
	s.opts.Logger.Info("guest rate updated", "base", base.String(), "per_minute", perMinute.String())
	return r, nil
}

func (s *GuestService) List(ctx context.Context) ([]types.GuestSession, error) {
	var out []types.GuestSession
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GuestSessions().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list guest sessions: %w", err)
	}
	return out, nil
}

func (s *GuestService) get(ctx context.Context, id string) (types.GuestSession, error) {
	id = strings.TrimSpace(id)
	var out types.GuestSession
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GuestSessions().Get(ctx, id)
		return translate(err, ErrSessionNotFound.With("session %s", id), nil)
	})
	if err != nil {
		return types.GuestSession{}, fmt.Errorf("get guest session %s: %w", id, err)
	}
	return out, nil
}

// remember refreshes the plate lookup cache. Failures only cost a cache miss.
func (s *GuestService) remember(ctx context.Context, sess types.GuestSession) {
	rememberGuest(ctx, s.cache, sess, s.opts)
}

func rememberGuest(ctx context.Context, c cache.Cache, sess types.GuestSession, opts Options) {
	if c == nil {
		return
	}
	if err := c.SetJSON(ctx, cache.GuestSessionKey(sess.PlateText), sess, opts.CacheTTL); err != nil {
		opts.Logger.Warn("guest session cache write failed", "session", sess.ID, "err", err)
	}
}

// openGuestTx returns the plate's open session or inserts a new one.
func openGuestTx(ctx context.Context, tx store.Tx, plate string, now time.Time) (types.GuestSession, error) {
	existing, err := tx.GuestSessions().FindOpenByPlate(ctx, plate)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.GuestSession{}, err
	}
	sess := types.GuestSession{
		ID:        types.NewID("GST"),
		PlateText: plate,
		StartTime: now,
		Status:    types.GuestOpen,
	}
	if err := tx.GuestSessions().Insert(ctx, sess); err != nil {
		return types.GuestSession{}, err
	}
	return sess, nil
}

func payableSessionTx(ctx context.Context, tx store.Tx, id string) (types.GuestSession, error) {
	sess, err := tx.GuestSessions().Get(ctx, id)
	if err != nil {
		return types.GuestSession{}, translate(err, ErrSessionNotFound.With("session %s", id), nil)
	}
	if sess.Status != types.GuestClosed {
		return types.GuestSession{}, ErrInvalidSessionState.With("session %s is %s, not closed", id, sess.Status)
	}
	return sess, nil
}

func rateTx(ctx context.Context, tx store.Tx, fallback types.GuestRate) (types.GuestRate, error) {
	r, err := tx.GuestRate().Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return fallback, nil
	}
	return r, err
}

func amountDue(sess types.GuestSession, override *types.Cents) types.Cents {
	if override != nil {
		return *override
	}
	return derefOr(sess.Fee, 0)
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
