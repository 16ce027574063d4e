// Package sqlite implements store.Store on modernc.org/sqlite. Writes run on
// the single-writer db.Worker; reads run in their own transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/smartgate/server/internal/db"
	"github.com/smartgate/server/internal/smartgate/store"
)

type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) Update(ctx context.Context, fn store.TxFn) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &sqlTx{tx: tx})
	})
}

func (s *Store) View(ctx context.Context, fn store.TxFn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(ctx, &sqlTx{tx: tx, readOnly: true})
}

type sqlTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.readOnly {
		return nil, store.ErrReadOnly
	}
	return t.tx.ExecContext(ctx, query, args...)
}

// execOne runs a statement expected to touch exactly one row.
func (t *sqlTx) execOne(ctx context.Context, query string, args ...any) error {
	res, err := t.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *sqlTx) Users() store.UserRepo                 { return userRepo{t} }
func (t *sqlTx) Vehicles() store.VehicleRepo           { return vehicleRepo{t} }
func (t *sqlTx) Passes() store.PassRepo                { return passRepo{t} }
func (t *sqlTx) Ledger() store.LedgerRepo              { return ledgerRepo{t} }
func (t *sqlTx) GuestSessions() store.GuestSessionRepo { return sessionRepo{t} }
func (t *sqlTx) GuestRate() store.GuestRateRepo        { return rateRepo{t} }
func (t *sqlTx) Payments() store.PaymentRepo           { return paymentRepo{t} }
func (t *sqlTx) Applications() store.ApplicationRepo   { return applicationRepo{t} }
func (t *sqlTx) Venues() store.VenueRepo               { return venueRepo{t} }
func (t *sqlTx) Gates() store.GateRepo                 { return gateRepo{t} }
func (t *sqlTx) Events() store.EventRepo               { return eventRepo{t} }
func (t *sqlTx) Notifications() store.NotificationRepo { return notificationRepo{t} }

// mapErr translates driver errors into store sentinels, wrapping with op.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%s: %w: %v", op, store.ErrConflict, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w: %v", op, store.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ── column helpers ───────────────────────────────────────────────────────────

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMs(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ms(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMs(v.Int64)
	return &t
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

// collect drains rows with scan, closing them.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func queryList[T any](ctx context.Context, t *sqlTx, op string, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	out, err := collect(rows, scan)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return out, nil
}

func queryOne[T any](ctx context.Context, t *sqlTx, op string, scan func(scanner) (T, error), query string, args ...any) (T, error) {
	v, err := scan(t.tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		var zero T
		return zero, mapErr(op, err)
	}
	return v, nil
}
