package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartgate/server/internal/db"
	"github.com/smartgate/server/internal/smartgate/store"
	sqlitestore "github.com/smartgate/server/internal/smartgate/store/sqlite"
	"github.com/smartgate/server/internal/smartgate/types"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// openTestDB returns a migrated in-memory SQLite database unique to the test,
// closed automatically when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenDSN(context.Background(), db.MemoryDSN("test_"+t.Name()))
	require.NoError(t, err, "openTestDB")
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestStore wires a Store over a fresh database and worker.
func newTestStore(t *testing.T) (*sqlitestore.Store, *sql.DB) {
	t.Helper()

	conn := openTestDB(t)
	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return sqlitestore.New(conn, w), conn
}

func mustUpdate(t *testing.T, st store.Store, fn store.TxFn) {
	t.Helper()
	require.NoError(t, st.Update(context.Background(), fn))
}

func seedUser(t *testing.T, st store.Store, id string, role types.Role) types.User {
	t.Helper()
	u := types.User{ID: id, Name: "User " + id, Email: id + "@uni.test", Role: role, CreatedAt: t0, UpdatedAt: t0}
	mustUpdate(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Insert(ctx, u)
	})
	return u
}
