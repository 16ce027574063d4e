package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/smartgate/server/internal/auth"
	"github.com/smartgate/server/internal/events"
	"github.com/smartgate/server/internal/smartgate/service"
	"github.com/smartgate/server/internal/smartgate/types"
)

type Dependencies struct {
	Logger *slog.Logger
	Addr   string

	Access        *service.AccessService
	Guests        *service.GuestService
	Ledger        *service.LedgerService
	Passes        *service.PassRegistry
	PassApps      *service.Workflow[types.PassApplicationPayload]
	Upgrades      *service.Workflow[types.RoleUpgradePayload]
	Venues        *service.VenueTracker
	Gates         *service.GateRegistry
	Directory     *service.DirectoryService
	Auth          *service.AuthService
	Notifications *service.NotificationService

	// AdminTokens guards /v1/admin/*; nil leaves admin routes open.
	AdminTokens *auth.TokenIssuer
	// ClientTokens ties wallet and payment routes to the token's user; nil
	// leaves them open.
	ClientTokens *auth.TokenIssuer
	// Limiter throttles decisions per gate; nil disables throttling.
	Limiter GateLimiter
	// Hub serves the live event feed; nil disables the websocket route.
	Hub *events.Hub
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	d          Dependencies
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger,
		mux:    mux,
		d:      d,
	}

	admin := func(h http.HandlerFunc) http.HandlerFunc { return requireAdmin(d.AdminTokens, h) }
	self := func(h http.HandlerFunc) http.HandlerFunc { return requireSelf(d.ClientTokens, h) }

	mux.HandleFunc("GET /health", s.handleHealth)

	// Access
	mux.HandleFunc("POST /v1/access/decide", s.handleDecide)
	mux.HandleFunc("GET /v1/access/events", s.handleRecentEvents)
	mux.HandleFunc("GET /v1/access/latest/{gate}", s.handleLatestDecision)
	mux.HandleFunc("POST /v1/gates/{gate}/heartbeat", s.handleGateHeartbeat)
	if d.Hub != nil {
		mux.HandleFunc("GET /v1/ws/access-events", d.Hub.ServeWS)
	}

	// Guest sessions
	mux.HandleFunc("GET /v1/guest/sessions", s.handleListGuestSessions)
	mux.HandleFunc("POST /v1/guest/sessions", s.handleOpenGuestSession)
	mux.HandleFunc("POST /v1/guest/sessions/{id}/close", s.handleCloseGuestSession)
	mux.HandleFunc("POST /v1/guest/sessions/{id}/pay", s.handlePayGuestSession)
	mux.HandleFunc("GET /v1/guest/lookup", s.handleGuestLookup)
	mux.HandleFunc("GET /v1/guest/rate", s.handleGetGuestRate)
	mux.HandleFunc("PUT /v1/admin/guest/rate", admin(s.handleSetGuestRate))

	// Passes and applications
	mux.HandleFunc("GET /v1/passes/plans", s.handlePlans)
	mux.HandleFunc("GET /v1/admin/passes", admin(s.handleListPasses))
	mux.HandleFunc("POST /v1/admin/passes", admin(s.handleIssuePass))
	mux.HandleFunc("PUT /v1/admin/passes/{id}", admin(s.handleUpdatePass))
	mux.HandleFunc("DELETE /v1/admin/passes/{id}", admin(s.handleDeletePass))
	mux.HandleFunc("GET /v1/client/passes/{user}", s.handleUserPasses)
	mux.HandleFunc("POST /v1/client/passes/{id}/pay", s.handlePayPass)
	mux.HandleFunc("POST /v1/client/pass-applications", s.handleSubmitPassApplication)
	mux.HandleFunc("GET /v1/admin/pass-applications", admin(s.handleListPassApplications))
	mux.HandleFunc("POST /v1/admin/pass-applications/{id}/decision", admin(s.handleDecidePassApplication))
	mux.HandleFunc("POST /v1/client/role-upgrades", s.handleSubmitRoleUpgrade)
	mux.HandleFunc("GET /v1/admin/role-upgrades", admin(s.handleListRoleUpgrades))
	mux.HandleFunc("POST /v1/admin/role-upgrades/{id}/decision", admin(s.handleDecideRoleUpgrade))

	// Wallet, payments, notifications, portal auth
	mux.HandleFunc("GET /v1/client/wallet/{user}", self(s.handleWallet))
	mux.HandleFunc("POST /v1/client/wallet/{user}/top-up", self(s.handleTopUp))
	mux.HandleFunc("GET /v1/admin/payments", admin(s.handleListPayments))
	mux.HandleFunc("GET /v1/admin/payments/{id}", admin(s.handleGetPayment))
	mux.HandleFunc("GET /v1/client/summary/{user}", self(s.handleClientSummary))
	mux.HandleFunc("POST /v1/client/register", s.handleRegister)
	mux.HandleFunc("GET /v1/client/notifications/{user}", s.handleNotifications)
	mux.HandleFunc("POST /v1/client/notifications/{user}/{id}/ack", s.handleAckNotification)
	mux.HandleFunc("POST /v1/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)

	// Parking venues
	mux.HandleFunc("GET /v1/parking/venues", s.handleListVenues)
	mux.HandleFunc("GET /v1/parking/overview", s.handleParkingOverview)
	mux.HandleFunc("POST /v1/parking/venues", admin(s.handleCreateVenue))
	mux.HandleFunc("PUT /v1/parking/venues/{id}", admin(s.handleUpdateVenue))
	mux.HandleFunc("DELETE /v1/parking/venues/{id}", admin(s.handleDeleteVenue))
	mux.HandleFunc("POST /v1/parking/events", s.handleVenueEvent)

	// Directory and gates
	mux.HandleFunc("GET /v1/admin/users", admin(s.handleListUsers))
	mux.HandleFunc("POST /v1/admin/users", admin(s.handleCreateUser))
	mux.HandleFunc("PUT /v1/admin/users/{id}", admin(s.handleUpdateUser))
	mux.HandleFunc("DELETE /v1/admin/users/{id}", admin(s.handleDeleteUser))
	mux.HandleFunc("GET /v1/admin/vehicles", admin(s.handleListVehicles))
	mux.HandleFunc("POST /v1/admin/vehicles", admin(s.handleCreateVehicle))
	mux.HandleFunc("PUT /v1/admin/vehicles/{id}", admin(s.handleUpdateVehicle))
	mux.HandleFunc("DELETE /v1/admin/vehicles/{id}", admin(s.handleDeleteVehicle))
	mux.HandleFunc("GET /v1/admin/gates", admin(s.handleListGates))
	mux.HandleFunc("POST /v1/admin/gates", admin(s.handleCreateGate))
	mux.HandleFunc("PUT /v1/admin/gates/{id}", admin(s.handleUpdateGate))
	mux.HandleFunc("DELETE /v1/admin/gates/{id}", admin(s.handleDeleteGate))

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "server_time": time.Now().UTC().Format(time.RFC3339)}
	if s.d.Hub != nil {
		body["live_clients"] = s.d.Hub.Connected()
	}
	writeJSON(w, http.StatusOK, body)
}

// ── Access ───────────────────────────────────────────────────────────────────

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req types.AccessRequest
	wantProto := isProtobuf(r)
	if wantProto {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		req = accessRequestFromStruct(&msg)
	} else if !decodeJSON(w, r, &req) {
		return
	}

	if s.d.Limiter != nil && req.Gate != "" {
		ok, err := s.d.Limiter.Allow(r.Context(), service.Slugify(req.Gate))
		if err != nil {
			s.logger.Warn("gate throttle unavailable", "gate", req.Gate, "err", err)
		} else if !ok {
			writeError(w, http.StatusTooManyRequests, "throttled", "too many captures for this gate")
			return
		}
	}

	res, err := s.d.Access.Decide(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if wantProto {
		msg, err := accessResultToStruct(res)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}
	evs, err := s.d.Access.Recent(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) handleLatestDecision(w http.ResponseWriter, r *http.Request) {
	d, ok, err := s.d.Access.LatestDecision(r.Context(), r.PathValue("gate"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no_recent_decision", "no recent decision at this gate")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGateHeartbeat(w http.ResponseWriter, r *http.Request) {
	g, err := s.d.Gates.NoteSeen(r.Context(), r.PathValue("gate"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
