package sqlite

import (
	"context"
	"database/sql"

	"github.com/smartgate/server/internal/smartgate/types"
)

const sessionCols = `session_id, plate_text, start_ms, end_ms, minutes, fee_cents, status`

func scanSession(s scanner) (types.GuestSession, error) {
	var (
		g            types.GuestSession
		start        int64
		end, minutes sql.NullInt64
		fee          sql.NullInt64
		status       string
	)
	if err := s.Scan(&g.ID, &g.PlateText, &start, &end, &minutes, &fee, &status); err != nil {
		return types.GuestSession{}, err
	}
	g.StartTime = fromMs(start)
	g.EndTime = timePtr(end)
	if minutes.Valid {
		m := int(minutes.Int64)
		g.Minutes = &m
	}
	if fee.Valid {
		f := types.Cents(fee.Int64)
		g.Fee = &f
	}
	g.Status = types.GuestStatus(status)
	return g, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullCents(p *types.Cents) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

type sessionRepo struct{ t *sqlTx }

func (r sessionRepo) Get(ctx context.Context, id string) (types.GuestSession, error) {
	return queryOne(ctx, r.t, "get guest session", scanSession,
		`SELECT `+sessionCols+` FROM guest_sessions WHERE session_id = ?;`, id)
}

func (r sessionRepo) FindOpenByPlate(ctx context.Context, plate string) (types.GuestSession, error) {
	return queryOne(ctx, r.t, "find open guest session", scanSession,
		`SELECT `+sessionCols+` FROM guest_sessions WHERE plate_text = ? AND status = 'open';`, plate)
}

func (r sessionRepo) FindLatestByPlate(ctx context.Context, plate string) (types.GuestSession, error) {
	return queryOne(ctx, r.t, "find guest session", scanSession, `
SELECT `+sessionCols+` FROM guest_sessions
WHERE plate_text = ?
ORDER BY start_ms DESC, rowid DESC
LIMIT 1;`, plate)
}

func (r sessionRepo) List(ctx context.Context) ([]types.GuestSession, error) {
	return queryList(ctx, r.t, "list guest sessions", scanSession,
		`SELECT `+sessionCols+` FROM guest_sessions ORDER BY start_ms DESC, rowid DESC;`)
}

func (r sessionRepo) Insert(ctx context.Context, g types.GuestSession) error {
	_, err := r.t.exec(ctx, `INSERT INTO guest_sessions(`+sessionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		g.ID, g.PlateText, ms(g.StartTime), nullMs(g.EndTime), nullInt(g.Minutes), nullCents(g.Fee), string(g.Status))
	return mapErr("insert guest session", err)
}

func (r sessionRepo) Update(ctx context.Context, g types.GuestSession) error {
	return mapErr("update guest session", r.t.execOne(ctx, `
UPDATE guest_sessions
SET end_ms = ?, minutes = ?, fee_cents = ?, status = ?
WHERE session_id = ?;`,
		nullMs(g.EndTime), nullInt(g.Minutes), nullCents(g.Fee), string(g.Status), g.ID))
}

type rateRepo struct{ t *sqlTx }

func (r rateRepo) Get(ctx context.Context) (types.GuestRate, error) {
	return queryOne(ctx, r.t, "get guest rate", func(s scanner) (types.GuestRate, error) {
		var base, per, updated int64
		if err := s.Scan(&base, &per, &updated); err != nil {
			return types.GuestRate{}, err
		}
		return types.GuestRate{Base: types.Cents(base), PerMinute: types.Cents(per), UpdatedAt: fromMs(updated)}, nil
	}, `SELECT base_cents, per_minute_cents, updated_at_ms FROM guest_rates WHERE id = 1;`)
}

func (r rateRepo) Put(ctx context.Context, rate types.GuestRate) error {
	_, err := r.t.exec(ctx, `
INSERT INTO guest_rates(id, base_cents, per_minute_cents, updated_at_ms)
VALUES (1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  base_cents = excluded.base_cents,
  per_minute_cents = excluded.per_minute_cents,
  updated_at_ms = excluded.updated_at_ms;`,
		int64(rate.Base), int64(rate.PerMinute), ms(rate.UpdatedAt))
	return mapErr("put guest rate", err)
}

const paymentCols = `payment_id, amount_cents, status, processor, currency, session_id, pass_id, reference, failure_reason, created_at_ms`

func scanPayment(s scanner) (types.Payment, error) {
	var (
		p                        types.Payment
		amount, created          int64
		status                   string
		session, pass, ref, fail sql.NullString
	)
	if err := s.Scan(&p.ID, &amount, &status, &p.Processor, &p.Currency, &session, &pass, &ref, &fail, &created); err != nil {
		return types.Payment{}, err
	}
	p.Amount = types.Cents(amount)
	p.Status = types.PaymentStatus(status)
	p.SessionID = session.String
	p.PassID = pass.String
	p.Reference = ref.String
	p.FailureReason = fail.String
	p.Timestamp = fromMs(created)
	return p, nil
}

type paymentRepo struct{ t *sqlTx }

func (r paymentRepo) Get(ctx context.Context, id string) (types.Payment, error) {
	return queryOne(ctx, r.t, "get payment", scanPayment,
		`SELECT `+paymentCols+` FROM payments WHERE payment_id = ?;`, id)
}

func (r paymentRepo) Insert(ctx context.Context, p types.Payment) error {
	_, err := r.t.exec(ctx, `INSERT INTO payments(`+paymentCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		p.ID, int64(p.Amount), string(p.Status), p.Processor, p.Currency,
		nullStr(p.SessionID), nullStr(p.PassID), nullStr(p.Reference), nullStr(p.FailureReason), ms(p.Timestamp))
	return mapErr("insert payment", err)
}

func (r paymentRepo) ListBySession(ctx context.Context, sessionID string) ([]types.Payment, error) {
	return queryList(ctx, r.t, "list payments", scanPayment,
		`SELECT `+paymentCols+` FROM payments WHERE session_id = ? ORDER BY created_at_ms, rowid;`, sessionID)
}

func (r paymentRepo) ListByPass(ctx context.Context, passID string) ([]types.Payment, error) {
	return queryList(ctx, r.t, "list payments", scanPayment,
		`SELECT `+paymentCols+` FROM payments WHERE pass_id = ? ORDER BY created_at_ms, rowid;`, passID)
}

func (r paymentRepo) List(ctx context.Context) ([]types.Payment, error) {
	return queryList(ctx, r.t, "list payments", scanPayment,
		`SELECT `+paymentCols+` FROM payments ORDER BY created_at_ms, rowid;`)
}
