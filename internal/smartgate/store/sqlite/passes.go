package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/smartgate/server/internal/smartgate/types"
)

const passCols = `pass_id, user_id, role, plan_type, valid_from_ms, valid_to_ms, price_cents, is_paid, paid_at_ms, created_at_ms`

func scanPass(s scanner) (types.Pass, error) {
	var (
		p                        types.Pass
		role, plan               string
		from, to, created, price int64
		paid                     int
		paidAt                   sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.UserID, &role, &plan, &from, &to, &price, &paid, &paidAt, &created); err != nil {
		return types.Pass{}, err
	}
	p.Role = types.Role(role)
	p.PlanType = types.PlanType(plan)
	p.ValidFrom = fromMs(from)
	p.ValidTo = fromMs(to)
	p.Price = types.Cents(price)
	p.Paid = paid == 1
	p.PaidAt = timePtr(paidAt)
	p.CreatedAt = fromMs(created)
	return p, nil
}

type passRepo struct{ t *sqlTx }

func (r passRepo) Get(ctx context.Context, id string) (types.Pass, error) {
	return queryOne(ctx, r.t, "get pass", scanPass,
		`SELECT `+passCols+` FROM passes WHERE pass_id = ?;`, id)
}

func (r passRepo) ListByUser(ctx context.Context, userID string) ([]types.Pass, error) {
	return queryList(ctx, r.t, "list passes", scanPass,
		`SELECT `+passCols+` FROM passes WHERE user_id = ? ORDER BY created_at_ms DESC, rowid DESC;`, userID)
}

func (r passRepo) List(ctx context.Context) ([]types.Pass, error) {
	return queryList(ctx, r.t, "list passes", scanPass,
		`SELECT `+passCols+` FROM passes ORDER BY created_at_ms DESC, rowid DESC;`)
}

func (r passRepo) Insert(ctx context.Context, p types.Pass) error {
	_, err := r.t.exec(ctx, `INSERT INTO passes(`+passCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		p.ID, p.UserID, string(p.Role), string(p.PlanType), ms(p.ValidFrom), ms(p.ValidTo),
		int64(p.Price), boolInt(p.Paid), nullMs(p.PaidAt), ms(p.CreatedAt))
	return mapErr("insert pass", err)
}

func (r passRepo) Update(ctx context.Context, p types.Pass) error {
	return mapErr("update pass", r.t.execOne(ctx, `
UPDATE passes
SET role = ?, plan_type = ?, valid_from_ms = ?, valid_to_ms = ?, price_cents = ?, is_paid = ?, paid_at_ms = ?
WHERE pass_id = ?;`,
		string(p.Role), string(p.PlanType), ms(p.ValidFrom), ms(p.ValidTo), int64(p.Price),
		boolInt(p.Paid), nullMs(p.PaidAt), p.ID))
}

func (r passRepo) Delete(ctx context.Context, id string) error {
	return mapErr("delete pass", r.t.execOne(ctx, `DELETE FROM passes WHERE pass_id = ?;`, id))
}

const txnCols = `txn_id, user_id, amount_cents, type, description, source, reference, created_at_ms`

func scanTxn(s scanner) (types.WalletTransaction, error) {
	var (
		w       types.WalletTransaction
		amount  int64
		typ     string
		ref     sql.NullString
		created int64
	)
	if err := s.Scan(&w.ID, &w.UserID, &amount, &typ, &w.Description, &w.Source, &ref, &created); err != nil {
		return types.WalletTransaction{}, err
	}
	w.Amount = types.Cents(amount)
	w.Type = types.TxType(typ)
	w.Reference = ref.String
	w.Timestamp = fromMs(created)
	return w, nil
}

type ledgerRepo struct{ t *sqlTx }

func (r ledgerRepo) Append(ctx context.Context, w types.WalletTransaction) error {
	_, err := r.t.exec(ctx, `INSERT INTO wallet_transactions(`+txnCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		w.ID, w.UserID, int64(w.Amount), string(w.Type), w.Description, w.Source, nullStr(w.Reference), ms(w.Timestamp))
	return mapErr("append wallet transaction", err)
}

func (r ledgerRepo) Balance(ctx context.Context, userID string) (types.Cents, error) {
	var sum int64
	err := r.t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM wallet_transactions WHERE user_id = ?;`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, mapErr("wallet balance", err)
	}
	return types.Cents(sum), nil
}

func (r ledgerRepo) List(ctx context.Context, userID string, limit int) ([]types.WalletTransaction, error) {
	if limit <= 0 {
		limit = -1
	}
	return queryList(ctx, r.t, "list wallet transactions", scanTxn, `
SELECT `+txnCols+` FROM wallet_transactions
WHERE user_id = ?
ORDER BY created_at_ms DESC, rowid DESC
LIMIT ?;`, userID, limit)
}

func (r ledgerRepo) LastOfType(ctx context.Context, userID string, typ types.TxType) (*time.Time, error) {
	var last sql.NullInt64
	err := r.t.tx.QueryRowContext(ctx,
		`SELECT MAX(created_at_ms) FROM wallet_transactions WHERE user_id = ? AND type = ?;`,
		userID, string(typ),
	).Scan(&last)
	if err != nil {
		return nil, mapErr("last wallet transaction", err)
	}
	return timePtr(last), nil
}
