package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smartgate/server/internal/payment"
	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// LedgerService owns the wallet log. Balances are never stored; every read
// sums the log.
type LedgerService struct {
	store      store.Store
	processors *payment.Registry
	opts       Options
}

func NewLedgerService(st store.Store, processors *payment.Registry, opts Options) *LedgerService {
	return &LedgerService{store: st, processors: processors, opts: opts.withDefaults()}
}

// Entry describes one ledger mutation. Amount is always positive; the
// direction comes from the call.
type Entry struct {
	UserID      string
	Amount      types.Cents
	Type        types.TxType
	Description string
	Source      string
	Reference   string
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrInvalidInput.With("user_id is required")
	}
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !e.Type.Valid() {
		return ErrInvalidInput.With("unknown transaction type %q", e.Type)
	}
	return nil
}

func (s *LedgerService) Credit(ctx context.Context, e Entry) (types.WalletTransaction, error) {
	if err := e.validate(); err != nil {
		return types.WalletTransaction{}, err
	}
	unlock := s.opts.Locks.User(e.UserID)
	defer unlock()

	var out types.WalletTransaction
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = creditTx(ctx, tx, e, s.opts.now())
		return err
	})
	if err != nil {
		return types.WalletTransaction{}, fmt.Errorf("credit %s: %w", e.UserID, err)
	}
	return out, nil
}

// Debit appends a negative entry. A debit larger than the balance is
// rejected with ErrInsufficientFunds and nothing is written.
func (s *LedgerService) Debit(ctx context.Context, e Entry) (types.WalletTransaction, error) {
	if err := e.validate(); err != nil {
		return types.WalletTransaction{}, err
	}
	unlock := s.opts.Locks.User(e.UserID)
	defer unlock()

	var out types.WalletTransaction
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = debitTx(ctx, tx, e, s.opts.now())
		return err
	})
	if err != nil {
		return types.WalletTransaction{}, fmt.Errorf("debit %s: %w", e.UserID, err)
	}
	return out, nil
}

// TopUp charges the processor registered for source and credits the wallet
// once the charge succeeds. The admin source is a manual adjustment and
// skips the processor.
func (s *LedgerService) TopUp(ctx context.Context, userID string, amount types.Cents, source string) (types.WalletTransaction, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = types.SourceTouchNGo
	}
	entry := Entry{
		UserID:      strings.TrimSpace(userID),
		Amount:      amount,
		Type:        types.TxTopUp,
		Description: "Wallet top-up",
		Source:      source,
	}
	if err := entry.validate(); err != nil {
		return types.WalletTransaction{}, err
	}

	var proc payment.Processor
	if source != types.SourceAdmin {
		p, ok := s.processors.Get(source)
		if !ok {
			return types.WalletTransaction{}, ErrUnsupportedSource.With("no processor for %q", source)
		}
		proc = p
	}

	unlock := s.opts.Locks.User(entry.UserID)
	defer unlock()

	if err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Users().Get(ctx, entry.UserID)
		return translate(err, ErrUserNotFound, nil)
	}); err != nil {
		return types.WalletTransaction{}, fmt.Errorf("top up %s: %w", entry.UserID, err)
	}

	if proc != nil {
		receipt, err := chargeWithTimeout(ctx, proc, payment.ChargeRequest{
			Amount:      amount,
			Currency:    s.opts.Currency,
			Reference:   "wallet:" + entry.UserID,
			Description: entry.Description,
		}, s.opts.ProcessorTimeout)
		if err != nil {
			s.opts.Logger.Warn("top-up charge failed", "user", entry.UserID, "source", source, "err", err)
			return types.WalletTransaction{}, ErrPaymentFailed.With("%v", err)
		}
		entry.Reference = receipt.Reference
		// Money has moved; the credit must land even if the caller left.
		ctx = context.WithoutCancel(ctx)
	} else {
		entry.Description = "Manual wallet adjustment"
	}

	var out types.WalletTransaction
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = creditTx(ctx, tx, entry, s.opts.now())
		return err
	})
	if err != nil {
		return types.WalletTransaction{}, fmt.Errorf("top up %s: %w", entry.UserID, err)
	}
	return out, nil
}

// Activity reports the balance and the newest transactions. limit <= 0
// returns every transaction.
func (s *LedgerService) Activity(ctx context.Context, userID string, limit int) (types.WalletActivity, error) {
	userID = strings.TrimSpace(userID)
	var out types.WalletActivity
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Users().Get(ctx, userID); err != nil {
			return translate(err, ErrUserNotFound, nil)
		}
		var err error
		out, err = activityTx(ctx, tx, userID, limit, s.opts.Currency)
		return err
	})
	if err != nil {
		return types.WalletActivity{}, fmt.Errorf("wallet activity %s: %w", userID, err)
	}
	return out, nil
}

// PaymentQuery narrows a payment listing to one session or one pass. The
// zero value lists every payment.
type PaymentQuery struct {
	SessionID string
	PassID    string
}

// Payments lists settlement attempts, oldest first.
func (s *LedgerService) Payments(ctx context.Context, q PaymentQuery) ([]types.Payment, error) {
	q.SessionID = strings.TrimSpace(q.SessionID)
	q.PassID = strings.TrimSpace(q.PassID)
	if q.SessionID != "" && q.PassID != "" {
		return nil, ErrInvalidInput.With("filter by session_id or pass_id, not both")
	}
	var out []types.Payment
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		switch {
		case q.SessionID != "":
			out, err = tx.Payments().ListBySession(ctx, q.SessionID)
		case q.PassID != "":
			out, err = tx.Payments().ListByPass(ctx, q.PassID)
		default:
			out, err = tx.Payments().List(ctx)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if out == nil {
		out = []types.Payment{}
	}
	return out, nil
}

func (s *LedgerService) Payment(ctx context.Context, id string) (types.Payment, error) {
	id = strings.TrimSpace(id)
	var out types.Payment
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Payments().Get(ctx, id)
		return translate(err, ErrPaymentNotFound.With("payment %s", id), nil)
	})
	if err != nil {
		return types.Payment{}, fmt.Errorf("get payment %s: %w", id, err)
	}
	return out, nil
}

func chargeWithTimeout(ctx context.Context, p payment.Processor, req payment.ChargeRequest, timeout time.Duration) (payment.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r, err := p.Charge(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return payment.Receipt{}, fmt.Errorf("%s timed out after %s", p.Name(), timeout)
		}
		return payment.Receipt{}, err
	}
	return r, nil
}

func activityTx(ctx context.Context, tx store.Tx, userID string, limit int, currency string) (types.WalletActivity, error) {
	out := types.WalletActivity{UserID: userID, Currency: currency}
	var err error
	if out.Balance, err = tx.Ledger().Balance(ctx, userID); err != nil {
		return out, err
	}
	if out.LastTopUp, err = tx.Ledger().LastOfType(ctx, userID, types.TxTopUp); err != nil {
		return out, err
	}
	if out.Transactions, err = tx.Ledger().List(ctx, userID, limit); err != nil {
		return out, err
	}
	if out.Transactions == nil {
		out.Transactions = []types.WalletTransaction{}
	}
	return out, nil
}

func creditTx(ctx context.Context, tx store.Tx, e Entry, now time.Time) (types.WalletTransaction, error) {
	if _, err := tx.Users().Get(ctx, e.UserID); err != nil {
		return types.WalletTransaction{}, translate(err, ErrUserNotFound, nil)
	}
	return appendTx(ctx, tx, e, e.Amount, now)
}

func debitTx(ctx context.Context, tx store.Tx, e Entry, now time.Time) (types.WalletTransaction, error) {
	if _, err := tx.Users().Get(ctx, e.UserID); err != nil {
		return types.WalletTransaction{}, translate(err, ErrUserNotFound, nil)
	}
	balance, err := tx.Ledger().Balance(ctx, e.UserID)
	if err != nil {
		return types.WalletTransaction{}, err
	}
	if balance < e.Amount {
		return types.WalletTransaction{}, ErrInsufficientFunds.With("balance %s, need %s", balance, e.Amount)
	}
	return appendTx(ctx, tx, e, -e.Amount, now)
}

func appendTx(ctx context.Context, tx store.Tx, e Entry, signed types.Cents, now time.Time) (types.WalletTransaction, error) {
	t := types.WalletTransaction{
		ID:          types.NewID("TXN"),
		UserID:      e.UserID,
		Amount:      signed,
		Type:        e.Type,
		Description: e.Description,
		Source:      e.Source,
		Reference:   e.Reference,
		Timestamp:   now,
	}
	if err := tx.Ledger().Append(ctx, t); err != nil {
		return types.WalletTransaction{}, err
	}
	return t, nil
}
