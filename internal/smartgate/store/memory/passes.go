package memory

import (
	"context"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type passRepo struct{ t *tx }

func (r passRepo) Get(_ context.Context, id string) (types.Pass, error) {
	p, ok := r.t.st.passes.get(id)
	if !ok {
		return types.Pass{}, store.ErrNotFound
	}
	return p, nil
}

func (r passRepo) ListByUser(_ context.Context, userID string) ([]types.Pass, error) {
	return newestFirst(r.t.st.passes.list(func(p types.Pass) bool { return p.UserID == userID })), nil
}

func (r passRepo) List(context.Context) ([]types.Pass, error) {
	return newestFirst(r.t.st.passes.list(nil)), nil
}

func (r passRepo) Insert(_ context.Context, p types.Pass) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.users.get(p.UserID); !ok {
		return store.ErrNotFound
	}
	if _, ok := r.t.st.passes.get(p.ID); ok {
		return store.ErrConflict
	}
	r.t.st.passes.put(p.ID, p)
	return nil
}

func (r passRepo) Update(_ context.Context, p types.Pass) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.passes.get(p.ID); !ok {
		return store.ErrNotFound
	}
	r.t.st.passes.put(p.ID, p)
	return nil
}

func (r passRepo) Delete(_ context.Context, id string) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if !r.t.st.passes.del(id) {
		return store.ErrNotFound
	}
	return nil
}

type ledgerRepo struct{ t *tx }

func (r ledgerRepo) Append(_ context.Context, txn types.WalletTransaction) error {
	if err := r.t.write(); err != nil {
		return err
	}
	r.t.st.ledger = append(r.t.st.ledger, txn)
	return nil
}

func (r ledgerRepo) Balance(_ context.Context, userID string) (types.Cents, error) {
	var sum types.Cents
	for _, txn := range r.t.st.ledger {
		if txn.UserID == userID {
			sum += txn.Amount
		}
	}
	return sum, nil
}

func (r ledgerRepo) List(_ context.Context, userID string, limit int) ([]types.WalletTransaction, error) {
	var out []types.WalletTransaction
	for i := len(r.t.st.ledger) - 1; i >= 0; i-- {
		if r.t.st.ledger[i].UserID != userID {
			continue
		}
		out = append(out, r.t.st.ledger[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r ledgerRepo) LastOfType(_ context.Context, userID string, typ types.TxType) (*time.Time, error) {
	for i := len(r.t.st.ledger) - 1; i >= 0; i-- {
		txn := r.t.st.ledger[i]
		if txn.UserID == userID && txn.Type == typ {
			ts := txn.Timestamp
			return &ts, nil
		}
	}
	return nil, nil
}
