package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/store/memory"
	"github.com/smartgate/server/internal/smartgate/types"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, st *memory.Store, id string) {
	t.Helper()
	err := st.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Insert(ctx, types.User{ID: id, Name: id, Email: id + "@uni.test", Role: types.RoleStudent})
	})
	require.NoError(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Unit of work
// ═══════════════════════════════════════════════════════════════════════════

func TestUpdate_ErrorDiscardsWrites(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	seedUser(t, st, "U1")

	boom := errors.New("boom")
	err := st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.Ledger().Append(ctx, types.WalletTransaction{ID: "T1", UserID: "U1", Amount: 500, Type: types.TxTopUp}))
		require.NoError(t, tx.Passes().Insert(ctx, types.Pass{ID: "P1", UserID: "U1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		bal, err := tx.Ledger().Balance(ctx, "U1")
		require.NoError(t, err)
		assert.Equal(t, types.Cents(0), bal)

		_, err = tx.Passes().Get(ctx, "P1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestView_RejectsWrites(t *testing.T) {
	st := memory.New()
	err := st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Venues().Insert(ctx, types.Venue{ID: "V1"})
	})
	assert.ErrorIs(t, err, store.ErrReadOnly)
}

// ═══════════════════════════════════════════════════════════════════════════
// Constraints
// ═══════════════════════════════════════════════════════════════════════════

func TestGuestSessions_OneOpenPerPlate(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	err := st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.GuestSessions().Insert(ctx, types.GuestSession{ID: "G1", PlateText: "ABC123", Status: types.GuestOpen, StartTime: t0})
	})
	require.NoError(t, err)

	err = st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.GuestSessions().Insert(ctx, types.GuestSession{ID: "G2", PlateText: "ABC123", Status: types.GuestOpen, StartTime: t0})
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestVehicles_PlateUnique(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	seedUser(t, st, "U1")
	seedUser(t, st, "U2")

	err := st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Vehicles().Insert(ctx, types.Vehicle{ID: "V1", UserID: "U1", PlateText: "WXY 1234"})
	})
	require.NoError(t, err)

	err = st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Vehicles().Insert(ctx, types.Vehicle{ID: "V2", UserID: "U2", PlateText: "WXY 1234"})
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUsers_DeleteCascades(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	seedUser(t, st, "U1")

	err := st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Vehicles().Insert(ctx, types.Vehicle{ID: "V1", UserID: "U1", PlateText: "AAA 1"}); err != nil {
			return err
		}
		if err := tx.Passes().Insert(ctx, types.Pass{ID: "P1", UserID: "U1"}); err != nil {
			return err
		}
		return tx.Ledger().Append(ctx, types.WalletTransaction{ID: "T1", UserID: "U1", Amount: 100, Type: types.TxTopUp})
	})
	require.NoError(t, err)

	err = st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Delete(ctx, "U1")
	})
	require.NoError(t, err)

	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		vs, _ := tx.Vehicles().List(ctx)
		ps, _ := tx.Passes().List(ctx)
		txns, _ := tx.Ledger().List(ctx, "U1", 0)
		assert.Empty(t, vs)
		assert.Empty(t, ps)
		assert.Len(t, txns, 1, "ledger history survives user deletion")
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_ListNewestFirst(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	err := st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		for i, amt := range []types.Cents{100, -40, 250} {
			txn := types.WalletTransaction{ID: string(rune('A' + i)), UserID: "U1", Amount: amt, Type: types.TxTopUp, Timestamp: t0.Add(time.Duration(i) * time.Minute)}
			if err := tx.Ledger().Append(ctx, txn); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		txns, err := tx.Ledger().List(ctx, "U1", 2)
		require.NoError(t, err)
		require.Len(t, txns, 2)
		assert.Equal(t, "C", txns[0].ID)
		assert.Equal(t, "B", txns[1].ID)

		bal, _ := tx.Ledger().Balance(ctx, "U1")
		assert.Equal(t, types.Cents(310), bal)
		return nil
	})
	require.NoError(t, err)
}

func TestNotifications_PruneOnlyRead(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	err := st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.Notifications().Insert(ctx, types.Notification{ID: "N1", UserID: "U1", CreatedAt: t0}))
		require.NoError(t, tx.Notifications().Insert(ctx, types.Notification{ID: "N2", UserID: "U1", CreatedAt: t0}))
		_, err := tx.Notifications().MarkRead(ctx, "U1", "N1", t0.Add(time.Hour))
		return err
	})
	require.NoError(t, err)

	var pruned int64
	err = st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pruned, err = tx.Notifications().PruneReadBefore(ctx, t0.Add(24*time.Hour))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}
