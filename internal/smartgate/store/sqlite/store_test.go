package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// Unit of work
// ═══════════════════════════════════════════════════════════════════════════

func TestUpdate_RollbackDiscardsAllWrites(t *testing.T) {
	st, conn := newTestStore(t)
	seedUser(t, st, "U1", types.RoleStudent)

	boom := errors.New("boom")
	err := st.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.Ledger().Append(ctx, types.WalletTransaction{
			ID: "T1", UserID: "U1", Amount: -500, Type: types.TxPassPayment, Timestamp: t0,
		}))
		require.NoError(t, tx.Passes().Insert(ctx, types.Pass{
			ID: "P1", UserID: "U1", Role: types.RoleStudent, PlanType: types.PlanAnnual,
			ValidFrom: t0, ValidTo: t0.AddDate(1, 0, 0), Price: 12000, CreatedAt: t0,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM wallet_transactions`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM passes`).Scan(&n))
	assert.Zero(t, n)
}

func TestView_RejectsWrites(t *testing.T) {
	st, _ := newTestStore(t)

	err := st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Venues().Insert(ctx, types.Venue{ID: "V1", Name: "Lot"})
	})
	assert.ErrorIs(t, err, store.ErrReadOnly)
}

// ═══════════════════════════════════════════════════════════════════════════
// Round trips
// ═══════════════════════════════════════════════════════════════════════════

func TestPasses_RoundTrip(t *testing.T) {
	st, _ := newTestStore(t)
	seedUser(t, st, "U1", types.RoleStaff)

	paidAt := t0.Add(time.Hour)
	want := types.Pass{
		ID: "P1", UserID: "U1", Role: types.RoleStaff, PlanType: types.PlanShortSemester,
		ValidFrom: t0, ValidTo: t0.AddDate(0, 0, 50), Price: 3000, Paid: true, PaidAt: &paidAt, CreatedAt: t0,
	}
	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.Passes().Insert(ctx, want)
	})

	err := st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Passes().Get(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
		return nil
	})
	require.NoError(t, err)
}

func TestPasses_WindowCheckConstraint(t *testing.T) {
	st, _ := newTestStore(t)
	seedUser(t, st, "U1", types.RoleStaff)

	err := st.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Passes().Insert(ctx, types.Pass{
			ID: "P1", UserID: "U1", Role: types.RoleStaff, PlanType: types.PlanAnnual,
			ValidFrom: t0, ValidTo: t0, CreatedAt: t0,
		})
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestGuestSessions_RoundTripAndOpenIndex(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.GuestSessions().Insert(ctx, types.GuestSession{ID: "G1", PlateText: "ABC123", StartTime: t0, Status: types.GuestOpen})
	})

	err := st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.GuestSessions().Insert(ctx, types.GuestSession{ID: "G2", PlateText: "ABC123", StartTime: t0, Status: types.GuestOpen})
	})
	require.ErrorIs(t, err, store.ErrConflict)

	end := t0.Add(630 * time.Second)
	minutes := 11
	fee := types.Cents(750)
	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.GuestSessions().Update(ctx, types.GuestSession{
			ID: "G1", PlateText: "ABC123", StartTime: t0, EndTime: &end, Minutes: &minutes, Fee: &fee, Status: types.GuestClosed,
		})
	})

	// A closed session frees the plate for a new open one.
	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.GuestSessions().Insert(ctx, types.GuestSession{ID: "G3", PlateText: "ABC123", StartTime: end, Status: types.GuestOpen})
	})

	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		g, err := tx.GuestSessions().Get(ctx, "G1")
		require.NoError(t, err)
		require.NotNil(t, g.Fee)
		assert.Equal(t, fee, *g.Fee)
		assert.Equal(t, 11, *g.Minutes)

		latest, err := tx.GuestSessions().FindLatestByPlate(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, "G3", latest.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestPayments_ExactlyOneTarget(t *testing.T) {
	st, _ := newTestStore(t)

	err := st.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Payments().Insert(ctx, types.Payment{ID: "PAY1", Amount: 100, Status: types.PaymentSucceeded, Processor: "wallet", Currency: "MYR", Timestamp: t0})
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestLedger_BalanceAndOrdering(t *testing.T) {
	st, _ := newTestStore(t)

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		for i, amt := range []types.Cents{3000, -1200, 500} {
			typ := types.TxTopUp
			if amt < 0 {
				typ = types.TxDebit
			}
			if err := tx.Ledger().Append(ctx, types.WalletTransaction{
				ID: string(rune('A' + i)), UserID: "U1", Amount: amt, Type: typ, Source: "touchngo", Timestamp: t0,
			}); err != nil {
				return err
			}
		}
		return nil
	})

	err := st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		bal, err := tx.Ledger().Balance(ctx, "U1")
		require.NoError(t, err)
		assert.Equal(t, types.Cents(2300), bal)

		txns, err := tx.Ledger().List(ctx, "U1", 0)
		require.NoError(t, err)
		require.Len(t, txns, 3)
		assert.Equal(t, "C", txns[0].ID, "same timestamp falls back to insertion order")

		last, err := tx.Ledger().LastOfType(ctx, "U1", types.TxTopUp)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.True(t, last.Equal(t0))

		none, err := tx.Ledger().LastOfType(ctx, "U1", types.TxRefund)
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestApplications_FilterByStatus(t *testing.T) {
	st, _ := newTestStore(t)
	payload, _ := json.Marshal(types.RoleUpgradePayload{TargetRole: types.RoleStaff})

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		for i, status := range []types.ApplicationStatus{types.StatusPending, types.StatusApproved} {
			if err := tx.Applications().Insert(ctx, store.ApplicationRecord{
				ID: string(rune('A' + i)), Kind: types.KindRoleUpgrade, UserID: "U1",
				Payload: payload, Status: status, SubmittedAt: t0.Add(time.Duration(i) * time.Second),
			}); err != nil {
				return err
			}
		}
		return nil
	})

	err := st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		all, err := tx.Applications().List(ctx, types.KindRoleUpgrade, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		pending, err := tx.Applications().List(ctx, types.KindRoleUpgrade, types.StatusPending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.JSONEq(t, string(payload), string(pending[0].Payload))

		_, err = tx.Applications().Get(ctx, types.KindPass, "A")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Referential behaviour
// ═══════════════════════════════════════════════════════════════════════════

func TestUsers_DeleteCascadesButKeepsLedger(t *testing.T) {
	st, conn := newTestStore(t)
	seedUser(t, st, "U1", types.RoleStudent)

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Vehicles().Insert(ctx, types.Vehicle{ID: "V1", PlateText: "WXY 1234", UserID: "U1", CreatedAt: t0}); err != nil {
			return err
		}
		return tx.Ledger().Append(ctx, types.WalletTransaction{ID: "T1", UserID: "U1", Amount: 100, Type: types.TxTopUp, Timestamp: t0})
	})
	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Delete(ctx, "U1")
	})

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM vehicles`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM wallet_transactions`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestUsers_EmailUniqueIgnoringCase(t *testing.T) {
	st, _ := newTestStore(t)
	seedUser(t, st, "U1", types.RoleStudent)

	err := st.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Insert(ctx, types.User{ID: "U2", Name: "Other", Email: "U1@UNI.TEST", Role: types.RoleGuest, CreatedAt: t0, UpdatedAt: t0})
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().FindByLogin(ctx, "u1@uni.test")
		require.NoError(t, err)
		assert.Equal(t, "U1", u.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestVehicles_UnknownOwnerIsNotFound(t *testing.T) {
	st, _ := newTestStore(t)

	err := st.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Vehicles().Insert(ctx, types.Vehicle{ID: "V1", PlateText: "AAA 1", UserID: "ghost", CreatedAt: t0})
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGates_UnlinkVenueAndMarkSeen(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Venues().Insert(ctx, types.Venue{ID: "VEN1", Name: "Lot A", Capacity: 10, UpdatedAt: t0}); err != nil {
			return err
		}
		return tx.Gates().Insert(ctx, types.Gate{
			ID: "G1", Name: "Outer", Slug: "outer", MinRole: types.RoleGuest, Active: true,
			VenueID: "VEN1", Direction: types.DirectionEntry, CreatedAt: t0,
		})
	})

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Gates().UnlinkVenue(ctx, "VEN1"); err != nil {
			return err
		}
		if err := tx.Venues().Delete(ctx, "VEN1"); err != nil {
			return err
		}
		return tx.Gates().MarkSeen(ctx, "G1", t0.Add(time.Minute))
	})

	err := st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		g, err := tx.Gates().GetBySlug(ctx, "outer")
		require.NoError(t, err)
		assert.Empty(t, g.VenueID)
		assert.Empty(t, g.Direction)
		require.NotNil(t, g.LastSeenAt)
		assert.True(t, g.LastSeenAt.Equal(t0.Add(time.Minute)))
		return nil
	})
	require.NoError(t, err)
}

func TestEvents_RecentNewestFirst(t *testing.T) {
	st, _ := newTestStore(t)

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.Events().Append(ctx, types.AccessEvent{
				ID: string(rune('A' + i)), PlateText: "ABC123", Confidence: 0.9,
				Decision: types.DecisionDeny, Reason: types.ReasonUnknownPlate, GateSlug: "inner",
				Timestamp: t0.Add(time.Duration(i) * time.Second),
			}); err != nil {
				return err
			}
		}
		return nil
	})

	err := st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		evs, err := tx.Events().Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, "C", evs[0].ID)
		assert.Equal(t, "B", evs[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestNotifications_MarkReadAndPrune(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		for _, id := range []string{"N1", "N2"} {
			if err := tx.Notifications().Insert(ctx, types.Notification{ID: id, UserID: "U1", Message: "hi", CreatedAt: t0}); err != nil {
				return err
			}
		}
		return nil
	})

	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.Notifications().MarkRead(ctx, "U1", "N1", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, n.Read)

		_, err = tx.Notifications().MarkRead(ctx, "U2", "N2", t0)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})

	var pruned int64
	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		var err error
		pruned, err = tx.Notifications().PruneReadBefore(ctx, t0.Add(48*time.Hour))
		return err
	})
	assert.Equal(t, int64(1), pruned)
}
