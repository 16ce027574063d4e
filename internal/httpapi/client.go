package httpapi

import (
	"net/http"

	"github.com/smartgate/server/internal/smartgate/service"
	"github.com/smartgate/server/internal/smartgate/types"
)

type topUpRequest struct {
	AmountCents types.Cents `json:"amount_cents" validate:"gt=0"`
	Source      string      `json:"source,omitempty"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}
	act, err := s.d.Ledger.Activity(r.Context(), r.PathValue("user"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	txn, err := s.d.Ledger.TopUp(r.Context(), r.PathValue("user"), req.AmountCents, req.Source)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Notifications.List(r.Context(), r.PathValue("user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAckNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.d.Notifications.Acknowledge(r.Context(), r.PathValue("user"), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleClientSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.d.Directory.Summary(r.Context(), r.PathValue("user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.Registration
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.d.Directory.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ── Portal auth ──────────────────────────────────────────────────────────────

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.d.Auth.Signup(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.d.Auth.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
