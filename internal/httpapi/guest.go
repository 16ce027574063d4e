package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/smartgate/server/internal/smartgate/service"
	"github.com/smartgate/server/internal/smartgate/types"
)

type openGuestRequest struct {
	PlateText string `json:"plate_text" validate:"required"`
}

type payGuestRequest struct {
	AmountCents *types.Cents `json:"amount_cents,omitempty"`
	Source      string       `json:"source,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
}

type rateRequest struct {
	Base      types.Cents `json:"base_rate_cents" validate:"gte=0"`
	PerMinute types.Cents `json:"per_minute_rate_cents" validate:"gte=0"`
}

func (s *Server) handleListGuestSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Guests.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleOpenGuestSession(w http.ResponseWriter, r *http.Request) {
	var req openGuestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.d.Guests.Open(r.Context(), req.PlateText)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleCloseGuestSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.d.Guests.Close(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePayGuestSession(w http.ResponseWriter, r *http.Request) {
	var req payGuestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.EqualFold(strings.TrimSpace(req.Source), types.SourceWallet) &&
		!authorizeUser(s.d.ClientTokens, w, r, req.UserID) {
		return
	}
	res, err := s.d.Guests.Pay(r.Context(), service.PayRequest{
		SessionID: r.PathValue("id"),
		Amount:    req.AmountCents,
		Source:    req.Source,
		UserID:    req.UserID,
	})
	if errors.Is(err, service.ErrPaymentFailed) && res.Payment.ID != "" {
		// The failed attempt is on record; hand it back so the client can retry.
		writeJSON(w, http.StatusPaymentRequired, res)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGuestLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.d.Guests.Lookup(r.Context(), service.LookupQuery{
		SessionID: q.Get("session_id"),
		Plate:     q.Get("plate"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetGuestRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.d.Guests.Rate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) handleSetGuestRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rate, err := s.d.Guests.SetRate(r.Context(), req.Base, req.PerMinute)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}
