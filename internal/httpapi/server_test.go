package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/smartgate/server/internal/auth"
	"github.com/smartgate/server/internal/cache"
	"github.com/smartgate/server/internal/httpapi"
	"github.com/smartgate/server/internal/payment"
	"github.com/smartgate/server/internal/smartgate/service"
	"github.com/smartgate/server/internal/smartgate/store/memory"
	"github.com/smartgate/server/internal/smartgate/types"
)

type stubProcessor struct{ err error }

func (stubProcessor) Name() string { return types.SourceTouchNGo }

func (p stubProcessor) Charge(context.Context, payment.ChargeRequest) (payment.Receipt, error) {
	if p.err != nil {
		return payment.Receipt{}, p.err
	}
	return payment.Receipt{Reference: "TNG-HTTP", Status: "succeeded"}, nil
}

type harness struct {
	ts     *httptest.Server
	deps   httpapi.Dependencies
	tokens *auth.TokenIssuer
}

type option func(d *httpapi.Dependencies, tokens *auth.TokenIssuer)

// newHarness wires the full dependency graph on the in-memory store and
// seeds one guest gate ("outer") and one staff gate ("inner").
func newHarness(t *testing.T, processor payment.Processor, opts ...option) *harness {
	t.Helper()

	st := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := service.Options{Logger: logger, Locks: service.NewLocks()}
	c := cache.NewMemory()
	tokens := auth.NewTokenIssuer("http-test-secret", time.Hour)
	var procs *payment.Registry
	if processor != nil {
		procs = payment.NewRegistry(processor)
	}

	d := httpapi.Dependencies{
		Logger:        logger,
		Addr:          ":0",
		Access:        service.NewAccessService(st, service.AccessPolicy{MinConfidence: 0.5}, nil, c, nil, o),
		Guests:        service.NewGuestService(st, procs, c, types.GuestRate{Base: 250, PerMinute: 75}, o),
		Ledger:        service.NewLedgerService(st, procs, o),
		Passes:        service.NewPassRegistry(st, o),
		PassApps:      service.NewWorkflow[types.PassApplicationPayload](st, service.PassStrategy{Logger: logger}, o),
		Upgrades:      service.NewWorkflow[types.RoleUpgradePayload](st, service.RoleUpgradeStrategy{}, o),
		Venues:        service.NewVenueTracker(st, o),
		Gates:         service.NewGateRegistry(st, o),
		Directory:     service.NewDirectoryService(st, o),
		Auth:          service.NewAuthService(st, tokens, o),
		Notifications: service.NewNotificationService(st, o),
	}
	for _, opt := range opts {
		opt(&d, tokens)
	}

	ctx := context.Background()
	_, err := d.Gates.Create(ctx, service.GateInput{Name: "Outer", Slug: "outer", MinRole: types.RoleGuest})
	require.NoError(t, err)
	_, err = d.Gates.Create(ctx, service.GateInput{Name: "Inner", Slug: "inner", MinRole: types.RoleStaff})
	require.NoError(t, err)

	ts := httptest.NewServer(httpapi.NewServer(d).Handler())
	t.Cleanup(ts.Close)
	return &harness{ts: ts, deps: d, tokens: tokens}
}

func withAdminAuth(d *httpapi.Dependencies, tokens *auth.TokenIssuer) { d.AdminTokens = tokens }

func withClientAuth(d *httpapi.Dependencies, tokens *auth.TokenIssuer) { d.ClientTokens = tokens }

func withLimiter(l httpapi.GateLimiter) option {
	return func(d *httpapi.Dependencies, _ *auth.TokenIssuer) { d.Limiter = l }
}

func (h *harness) do(t *testing.T, method, path string, body any, header ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decodeBody[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

// ── Access ───────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestDecide_GuestGateOpensSession(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPost, "/v1/access/decide", map[string]any{
		"gate": "outer", "plate_text": "zzz 999", "confidence": 0.9,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	res := decodeBody[types.AccessResult](t, body)
	assert.Equal(t, types.DecisionGuest, res.Decision.Decision)
	assert.NotEmpty(t, res.Decision.GuestSessionID)
	assert.Equal(t, "ZZZ 999", res.Event.PlateText)

	resp, body = h.do(t, http.MethodPost, "/v1/access/decide", map[string]any{
		"gate": "inner", "plate_text": "zzz 999", "confidence": 0.9,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.DecisionDeny, decodeBody[types.AccessResult](t, body).Decision.Decision,
		"a DENY is a business outcome, not an HTTP error")

	resp, body = h.do(t, http.MethodGet, "/v1/access/events?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]types.AccessEvent](t, body), 2)

	resp, body = h.do(t, http.MethodGet, "/v1/access/latest/inner", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.DecisionDeny, decodeBody[types.AccessDecision](t, body).Decision)
}

func TestDecide_RejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPost, "/v1/access/decide", map[string]any{"plate_text": "A 1", "confidence": 0.9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, _ = h.do(t, http.MethodPost, "/v1/access/decide", map[string]any{"gate": "outer", "plate_text": "A 1", "confidence": 2})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/v1/access/decide", `{"gate":"outer","plate":"A 1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "bad_json", "unknown fields are rejected")

	resp, body = h.do(t, http.MethodPost, "/v1/access/decide", map[string]any{"gate": "outer", "confidence": 0.9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "plate_required")

	resp, _ = h.do(t, http.MethodGet, "/v1/access/events?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecide_ThrottledPerGate(t *testing.T) {
	h := newHarness(t, nil, withLimiter(httpapi.NewLocalLimiter(2, time.Minute)))
	req := map[string]any{"gate": "outer", "plate_text": "FAST 1", "confidence": 0.9}

	for range 2 {
		resp, _ := h.do(t, http.MethodPost, "/v1/access/decide", req)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := h.do(t, http.MethodPost, "/v1/access/decide", req)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	other := map[string]any{"gate": "inner", "plate_text": "FAST 1", "confidence": 0.9}
	resp, _ = h.do(t, http.MethodPost, "/v1/access/decide", other)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "budgets are per gate")
}

func TestDecide_Protobuf(t *testing.T) {
	h := newHarness(t, nil)

	msg, err := structpb.NewStruct(map[string]any{"gate": "outer", "plate_text": "PB 1", "confidence": 0.95})
	require.NoError(t, err)
	raw, err := proto.Marshal(msg)
	require.NoError(t, err)

	resp, err := http.Post(h.ts.URL+"/v1/access/decide", "application/x-protobuf", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out structpb.Struct
	require.NoError(t, proto.Unmarshal(body, &out))
	assert.Equal(t, "GUEST", out.GetFields()["decision"].GetStringValue())
	assert.Equal(t, "PB 1", out.GetFields()["plate_text"].GetStringValue())
	assert.NotEmpty(t, out.GetFields()["event_id"].GetStringValue())
}

func TestDecide_ProtobufMediaTypeAndSize(t *testing.T) {
	h := newHarness(t, nil)

	msg, err := structpb.NewStruct(map[string]any{"gate": "outer", "plate_text": "PB 2", "confidence": 0.95})
	require.NoError(t, err)
	raw, err := proto.Marshal(msg)
	require.NoError(t, err)

	resp, err := http.Post(h.ts.URL+"/v1/access/decide", "application/protobuf; proto=google.protobuf.Struct", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	big, err := structpb.NewStruct(map[string]any{"gate": "outer", "image_base64": string(bytes.Repeat([]byte("A"), 8192))})
	require.NoError(t, err)
	raw, err = proto.Marshal(big)
	require.NoError(t, err)
	resp, err = http.Post(h.ts.URL+"/v1/access/decide", "application/x-protobuf", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "oversized captures are refused, not truncated")
}

func TestGateHeartbeat(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPost, "/v1/gates/outer/heartbeat", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, decodeBody[types.Gate](t, body).LastSeenAt)

	resp, _ = h.do(t, http.MethodPost, "/v1/gates/nowhere/heartbeat", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ── Guest sessions ───────────────────────────────────────────────────────────

func TestGuestPay_ProcessorFailureIs402WithPayment(t *testing.T) {
	h := newHarness(t, stubProcessor{err: errors.New("gateway down")})

	resp, body := h.do(t, http.MethodPost, "/v1/guest/sessions", map[string]any{"plate_text": "fail 1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	sess := decodeBody[types.GuestSession](t, body)

	resp, _ = h.do(t, http.MethodPost, "/v1/guest/sessions/"+sess.ID+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/v1/guest/sessions/"+sess.ID+"/pay", map[string]any{"source": "touchngo"})
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode, string(body))
	res := decodeBody[types.GuestPayment](t, body)
	assert.Equal(t, types.PaymentFailed, res.Payment.Status)
	assert.Equal(t, types.GuestClosed, res.Session.Status)

	resp, _ = h.do(t, http.MethodPost, "/v1/guest/sessions/"+sess.ID+"/close", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGuestPay_SucceedsAndLookupOwesNothing(t *testing.T) {
	h := newHarness(t, stubProcessor{})

	resp, body := h.do(t, http.MethodPost, "/v1/guest/sessions", map[string]any{"plate_text": "OK 1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decodeBody[types.GuestSession](t, body)
	resp, _ = h.do(t, http.MethodPost, "/v1/guest/sessions/"+sess.ID+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/v1/guest/sessions/"+sess.ID+"/pay", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "TNG-HTTP", decodeBody[types.GuestPayment](t, body).Payment.Reference)

	resp, body = h.do(t, http.MethodGet, "/v1/guest/lookup?plate=ok-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	look := decodeBody[types.GuestLookup](t, body)
	assert.Equal(t, types.GuestPaid, look.Session.Status)
	assert.Zero(t, look.AmountDue)

	resp, _ = h.do(t, http.MethodGet, "/v1/guest/lookup?session_id=GST-NOPE", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGuestRate(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPut, "/v1/admin/guest/rate", map[string]any{"base_rate_cents": 200, "per_minute_rate_cents": 50})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodGet, "/v1/guest/rate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rate := decodeBody[types.GuestRate](t, body)
	assert.Equal(t, types.Cents(200), rate.Base)
	assert.Equal(t, types.Cents(50), rate.PerMinute)

	resp, _ = h.do(t, http.MethodPut, "/v1/admin/guest/rate", map[string]any{"base_rate_cents": -1, "per_minute_rate_cents": 50})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ── Passes, wallet, applications ─────────────────────────────────────────────

func TestPassInvoice_InsufficientFundsIs422ThenPays(t *testing.T) {
	h := newHarness(t, stubProcessor{})
	ctx := context.Background()
	u, err := h.deps.Directory.CreateUser(ctx, service.UserInput{Name: "Ravi", Email: "ravi@campus.edu"})
	require.NoError(t, err)

	resp, body := h.do(t, http.MethodPost, "/v1/admin/passes", map[string]any{
		"user_id": u.ID, "role": "student", "plan_type": "short_semester",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	pass := decodeBody[types.Pass](t, body)

	resp, body = h.do(t, http.MethodPost, "/v1/client/passes/"+pass.ID+"/pay", map[string]any{"user_id": u.ID})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "insufficient_funds")

	resp, body = h.do(t, http.MethodPost, "/v1/client/wallet/"+u.ID+"/top-up", map[string]any{"amount_cents": 5000})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodPost, "/v1/client/passes/"+pass.ID+"/pay", map[string]any{"user_id": u.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.True(t, decodeBody[types.Pass](t, body).Paid)

	resp, body = h.do(t, http.MethodGet, "/v1/client/wallet/"+u.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.Cents(2000), decodeBody[types.WalletActivity](t, body).Balance)

	resp, body = h.do(t, http.MethodGet, "/v1/client/notifications/"+u.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decodeBody[[]types.Notification](t, body)
	require.NotEmpty(t, notes)

	resp, _ = h.do(t, http.MethodPost, "/v1/client/notifications/"+u.ID+"/"+notes[0].ID+"/ack", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPassApplication_DecideOnceOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	u, err := h.deps.Directory.CreateUser(context.Background(), service.UserInput{Name: "Mei", Email: "mei@campus.edu"})
	require.NoError(t, err)

	resp, body := h.do(t, http.MethodPost, "/v1/client/pass-applications", map[string]any{
		"user_id": u.ID, "role": "student", "plan_type": "annual", "vehicles": []string{"mei-1"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	app := decodeBody[types.PassApplication](t, body)

	resp, _ = h.do(t, http.MethodPost, "/v1/admin/pass-applications/"+app.ID+"/decision", map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/v1/admin/pass-applications/"+app.ID+"/decision",
		map[string]any{"status": "approved", "reviewer_id": "USR-REVIEWER"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "USR-REVIEWER", decodeBody[types.PassApplication](t, body).ReviewerID)

	resp, _ = h.do(t, http.MethodPost, "/v1/admin/pass-applications/"+app.ID+"/decision", map[string]any{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/v1/client/passes/"+u.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]types.Pass](t, body), 1)
}

// ── Admin auth ───────────────────────────────────────────────────────────────

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	h := newHarness(t, nil, withAdminAuth)
	tokens := h.tokens
	ctx := context.Background()

	admin, err := h.deps.Directory.CreateUser(ctx, service.UserInput{Name: "Root", Email: "root@campus.edu", Role: types.RoleAdmin})
	require.NoError(t, err)
	adminToken, err := tokens.Issue(admin.ID, types.RoleAdmin)
	require.NoError(t, err)
	guestToken, err := tokens.Issue("USR-GUEST", types.RoleGuest)
	require.NoError(t, err)

	resp, _ := h.do(t, http.MethodGet, "/v1/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/v1/admin/users", nil, "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/v1/admin/users", nil, "Authorization", "Bearer "+guestToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/v1/admin/users", nil, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]types.User](t, body), 1)

	resp, _ = h.do(t, http.MethodGet, "/v1/passes/plans", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "public routes stay open")

	up, err := h.deps.Upgrades.Submit(ctx, admin.ID, types.RoleUpgradePayload{TargetRole: types.RoleStaff})
	require.NoError(t, err)
	resp, body = h.do(t, http.MethodPost, "/v1/admin/role-upgrades/"+up.ID+"/decision",
		map[string]any{"status": "rejected", "reviewer_id": "spoofed"}, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, admin.ID, decodeBody[types.RoleUpgradeRequest](t, body).ReviewerID, "reviewer comes from the token")
}

func TestClientRoutes_TokenMustMatchUser(t *testing.T) {
	h := newHarness(t, stubProcessor{}, withClientAuth)
	ctx := context.Background()

	alice, err := h.deps.Directory.CreateUser(ctx, service.UserInput{Name: "Alice", Email: "alice@campus.edu", Role: types.RoleStudent})
	require.NoError(t, err)
	bob, err := h.deps.Directory.CreateUser(ctx, service.UserInput{Name: "Bob", Email: "bob@campus.edu", Role: types.RoleStudent})
	require.NoError(t, err)
	bearer := func(id string, role types.Role) string {
		tok, err := h.tokens.Issue(id, role)
		require.NoError(t, err)
		return "Bearer " + tok
	}
	asAlice, asBob, asAdmin := bearer(alice.ID, types.RoleStudent), bearer(bob.ID, types.RoleStudent), bearer("USR-ROOT", types.RoleAdmin)
	topUp := "/v1/client/wallet/" + alice.ID + "/top-up"

	resp, _ := h.do(t, http.MethodPost, topUp, map[string]any{"amount_cents": 5000})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, topUp, map[string]any{"amount_cents": 5000}, "Authorization", asBob)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, body := h.do(t, http.MethodPost, topUp, map[string]any{"amount_cents": 5000}, "Authorization", asAlice)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, _ = h.do(t, http.MethodPost, topUp, map[string]any{"amount_cents": 100}, "Authorization", asAdmin)
	assert.Equal(t, http.StatusCreated, resp.StatusCode, "admins may act for any user")

	resp, _ = h.do(t, http.MethodGet, "/v1/client/wallet/"+alice.ID, nil, "Authorization", asBob)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = h.do(t, http.MethodGet, "/v1/client/summary/"+alice.ID, nil, "Authorization", asBob)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, body = h.do(t, http.MethodGet, "/v1/client/wallet/"+alice.ID, nil, "Authorization", asAlice)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.Cents(5100), decodeBody[types.WalletActivity](t, body).Balance)

	pass, err := h.deps.Passes.Issue(ctx, service.IssueRequest{UserID: alice.ID, Role: types.RoleStudent, PlanType: types.PlanShortSemester})
	require.NoError(t, err)
	payPass := "/v1/client/passes/" + pass.ID + "/pay"
	resp, _ = h.do(t, http.MethodPost, payPass, map[string]any{"user_id": alice.ID}, "Authorization", asBob)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, body = h.do(t, http.MethodPost, payPass, map[string]any{"user_id": alice.ID}, "Authorization", asAlice)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodPost, "/v1/guest/sessions", map[string]any{"plate_text": "WAL 1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	sess := decodeBody[types.GuestSession](t, body)
	resp, _ = h.do(t, http.MethodPost, "/v1/guest/sessions/"+sess.ID+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payGuest := "/v1/guest/sessions/" + sess.ID + "/pay"
	resp, _ = h.do(t, http.MethodPost, payGuest, map[string]any{"source": "wallet", "user_id": alice.ID})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, payGuest, map[string]any{"source": "Wallet", "user_id": alice.ID}, "Authorization", asBob)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, body = h.do(t, http.MethodPost, payGuest, map[string]any{"source": "wallet", "user_id": alice.ID}, "Authorization", asAlice)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, types.SourceWallet, decodeBody[types.GuestPayment](t, body).Payment.Processor)

	resp, body = h.do(t, http.MethodPost, "/v1/guest/sessions", map[string]any{"plate_text": "TNG 2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	other := decodeBody[types.GuestSession](t, body)
	resp, _ = h.do(t, http.MethodPost, "/v1/guest/sessions/"+other.ID+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = h.do(t, http.MethodPost, "/v1/guest/sessions/"+other.ID+"/pay", map[string]any{"source": "touchngo"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "processor payments need no account: %s", body)
}

func TestRegisterThenSummary(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPost, "/v1/client/register", map[string]any{"name": "Ghost", "email": "ghost@campus.edu", "role": "guest"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodPost, "/v1/client/register", map[string]any{
		"name": "Farah", "email": "farah@campus.edu", "vehicles": []string{"far 1"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	reg := decodeBody[service.RegistrationResult](t, body)
	assert.Equal(t, types.RoleStudent, reg.User.Role)
	assert.Equal(t, types.StatusPending, reg.Application.Status)
	require.Len(t, reg.Vehicles, 1)

	resp, body = h.do(t, http.MethodGet, "/v1/client/summary/"+reg.User.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	sum := decodeBody[service.ClientSummary](t, body)
	assert.Equal(t, reg.User.ID, sum.User.ID)
	assert.Nil(t, sum.Pass)
	require.Len(t, sum.Vehicles, 1)
	assert.Equal(t, "FAR 1", sum.Vehicles[0].PlateText)
	require.Len(t, sum.PassApplications, 1)
	assert.Equal(t, reg.Application.ID, sum.PassApplications[0].ID)
	assert.Empty(t, sum.RoleUpgrades)

	resp, _ = h.do(t, http.MethodGet, "/v1/client/summary/USR-NOPE", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminPayments_ListAndGet(t *testing.T) {
	h := newHarness(t, stubProcessor{})

	resp, body := h.do(t, http.MethodPost, "/v1/guest/sessions", map[string]any{"plate_text": "PAY 1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	sess := decodeBody[types.GuestSession](t, body)
	resp, _ = h.do(t, http.MethodPost, "/v1/guest/sessions/"+sess.ID+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = h.do(t, http.MethodPost, "/v1/guest/sessions/"+sess.ID+"/pay", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodGet, "/v1/admin/payments?session_id="+sess.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	pays := decodeBody[[]types.Payment](t, body)
	require.Len(t, pays, 1)
	assert.Equal(t, "TNG-HTTP", pays[0].Reference)

	resp, body = h.do(t, http.MethodGet, "/v1/admin/payments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]types.Payment](t, body), 1)

	resp, body = h.do(t, http.MethodGet, "/v1/admin/payments?pass_id=PASS-NOPE", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", string(bytes.TrimSpace(body)))

	resp, _ = h.do(t, http.MethodGet, "/v1/admin/payments?pass_id=P&session_id=S", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/v1/admin/payments/"+pays[0].ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, pays[0].ID, decodeBody[types.Payment](t, body).ID)

	resp, _ = h.do(t, http.MethodGet, "/v1/admin/payments/PAY-NOPE", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPortalSignupAndLogin(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPost, "/v1/auth/signup", map[string]any{
		"name": "Siti", "email": "siti@campus.edu", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Equal(t, "bearer", decodeBody[service.Session](t, body).TokenType)

	resp, _ = h.do(t, http.MethodPost, "/v1/auth/login", map[string]any{"identifier": "siti@campus.edu", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/v1/auth/login", map[string]any{"identifier": "siti@campus.edu", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.NotEmpty(t, decodeBody[service.Session](t, body).Token)
}

// ── Venues and directory ─────────────────────────────────────────────────────

func TestVenues_EventClampsOverHTTP(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPost, "/v1/parking/venues", map[string]any{"name": "Tiny", "capacity": 1, "occupied": 0})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	v := decodeBody[types.Venue](t, body)

	for _, want := range []string{"", types.NoteVenueFull} {
		resp, body = h.do(t, http.MethodPost, "/v1/parking/events", map[string]any{"venue_id": v.ID, "direction": "entry"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		mv := decodeBody[service.VenueMovement](t, body)
		assert.Equal(t, 1, mv.Venue.Occupied)
		assert.Equal(t, want, mv.Note)
	}

	resp, _ = h.do(t, http.MethodPost, "/v1/parking/events", map[string]any{"venue_id": v.ID, "direction": "up"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodDelete, "/v1/parking/venues/"+v.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestParkingOverview(t *testing.T) {
	h := newHarness(t, nil)
	for _, v := range []map[string]any{
		{"name": "North", "capacity": 10, "occupied": 2},
		{"name": "South", "capacity": 30, "occupied": 8},
	} {
		resp, body := h.do(t, http.MethodPost, "/v1/parking/venues", v)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	resp, body := h.do(t, http.MethodGet, "/v1/parking/overview", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ov := decodeBody[types.ParkingOverview](t, body)
	assert.Len(t, ov.Venues, 2)
	assert.Equal(t, 40, ov.Capacity)
	assert.Equal(t, 10, ov.Occupied)
	assert.Equal(t, 30, ov.Available)
	assert.Equal(t, 25.0, ov.Percent)
}

func TestDirectory_DuplicatePlateIs409(t *testing.T) {
	h := newHarness(t, nil)
	u, err := h.deps.Directory.CreateUser(context.Background(), service.UserInput{Name: "Tan", Email: "tan@campus.edu"})
	require.NoError(t, err)

	resp, body := h.do(t, http.MethodPost, "/v1/admin/vehicles", map[string]any{"plate_text": "tan 88", "user_id": u.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodPost, "/v1/admin/vehicles", map[string]any{"plate_text": "TAN-88", "user_id": u.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "duplicate")

	resp, _ = h.do(t, http.MethodDelete, "/v1/admin/users/USR-NOPE", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ── Limiters ─────────────────────────────────────────────────────────────────

func TestCacheLimiter_FixedWindow(t *testing.T) {
	l := httpapi.NewCacheLimiter(cache.NewMemory(), 3, time.Minute)
	ctx := context.Background()
	for i := range 3 {
		ok, err := l.Allow(ctx, "outer")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, err := l.Allow(ctx, "outer")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "inner")
	require.NoError(t, err)
	assert.True(t, ok)
}
