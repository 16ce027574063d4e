package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartgate/server/internal/payment"
	"github.com/smartgate/server/internal/recognition"
	"github.com/smartgate/server/internal/smartgate/service"
	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/store/memory"
	"github.com/smartgate/server/internal/smartgate/types"
)

var t0 = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	st    *memory.Store
	clock *testClock
	opts  service.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: t0}
	return &fixture{
		st:    memory.New(),
		clock: clock,
		opts: service.Options{
			Now:   clock.Now,
			Locks: service.NewLocks(),
		},
	}
}

func (f *fixture) update(t *testing.T, fn store.TxFn) {
	t.Helper()
	require.NoError(t, f.st.Update(context.Background(), fn))
}

func (f *fixture) seedUser(t *testing.T, id string, role types.Role) types.User {
	t.Helper()
	u := types.User{ID: id, Name: id, Email: id + "@campus.test", Role: role, CreatedAt: t0, UpdatedAt: t0}
	f.update(t, func(ctx context.Context, tx store.Tx) error { return tx.Users().Insert(ctx, u) })
	return u
}

func (f *fixture) seedVehicle(t *testing.T, plate, userID string) {
	t.Helper()
	f.update(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Vehicles().Insert(ctx, types.Vehicle{ID: "VEH-" + plate, PlateText: plate, UserID: userID, CreatedAt: t0})
	})
}

func (f *fixture) seedPass(t *testing.T, id, userID string, role types.Role, paid bool, from, to time.Time) {
	t.Helper()
	f.update(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Passes().Insert(ctx, types.Pass{
			ID: id, UserID: userID, Role: role, PlanType: types.PlanShortSemester,
			ValidFrom: from, ValidTo: to, Price: 3000, Paid: paid, CreatedAt: from,
		})
	})
}

func (f *fixture) seedGate(t *testing.T, g types.Gate) {
	t.Helper()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = t0
	}
	f.update(t, func(ctx context.Context, tx store.Tx) error { return tx.Gates().Insert(ctx, g) })
}

func (f *fixture) seedVenue(t *testing.T, v types.Venue) {
	t.Helper()
	f.update(t, func(ctx context.Context, tx store.Tx) error { return tx.Venues().Insert(ctx, v) })
}

func (f *fixture) seedBalance(t *testing.T, userID string, amount types.Cents) {
	t.Helper()
	f.update(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Ledger().Append(ctx, types.WalletTransaction{
			ID: types.NewID("TXN"), UserID: userID, Amount: amount, Type: types.TxTopUp,
			Source: types.SourceAdmin, Timestamp: t0,
		})
	})
}

func (f *fixture) events(t *testing.T) []types.AccessEvent {
	t.Helper()
	var out []types.AccessEvent
	require.NoError(t, f.st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Events().Recent(ctx, 0)
		return err
	}))
	return out
}

func (f *fixture) notifications(t *testing.T, userID string) []types.Notification {
	t.Helper()
	var out []types.Notification
	require.NoError(t, f.st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Notifications().ListByUser(ctx, userID)
		return err
	}))
	return out
}

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeProcessor struct {
	name string
	err  error
	// during runs inside Charge before it answers.
	during func()
	mu     sync.Mutex
	calls  []payment.ChargeRequest
}

func (p *fakeProcessor) Name() string { return p.name }

func (p *fakeProcessor) Charge(_ context.Context, req payment.ChargeRequest) (payment.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.during != nil {
		p.during()
	}
	if p.err != nil {
		return payment.Receipt{}, p.err
	}
	return payment.Receipt{Reference: "TNG-TEST", Status: "succeeded"}, nil
}

func (p *fakeProcessor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeRecognizer struct {
	det recognition.Detection
	err error
}

func (r fakeRecognizer) Recognize(context.Context, string) (recognition.Detection, error) {
	return r.det, r.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.AccessEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev types.AccessEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []types.AccessEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.AccessEvent(nil), p.events...)
}
