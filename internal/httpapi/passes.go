package httpapi

import (
	"net/http"

	"github.com/smartgate/server/internal/smartgate/service"
	"github.com/smartgate/server/internal/smartgate/types"
)

type payPassRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type passApplicationRequest struct {
	UserID string `json:"user_id" validate:"required"`
	types.PassApplicationPayload
}

type roleUpgradeRequest struct {
	UserID string `json:"user_id" validate:"required"`
	types.RoleUpgradePayload
}

type decisionRequest struct {
	Status     types.ApplicationStatus `json:"status" validate:"required,oneof=approved rejected"`
	ReviewerID string                  `json:"reviewer_id,omitempty"`
	Note       string                  `json:"note,omitempty"`
}

// reviewer prefers the authenticated admin over the id named in the body.
func reviewer(r *http.Request, fallback string) string {
	if c, ok := claimsFrom(r.Context()); ok {
		return c.Subject
	}
	return fallback
}

func (s *Server) handlePlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Passes.Plans())
}

func (s *Server) handleListPasses(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Passes.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUserPasses(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Passes.ListByUser(r.Context(), r.PathValue("user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleIssuePass(w http.ResponseWriter, r *http.Request) {
	var req service.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.d.Passes.Issue(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePass(w http.ResponseWriter, r *http.Request) {
	var req service.PassUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.d.Passes.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePass(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Passes.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePayPass(w http.ResponseWriter, r *http.Request) {
	var req payPassRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorizeUser(s.d.ClientTokens, w, r, req.UserID) {
		return
	}
	p, err := s.d.Passes.PayInvoice(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ── Applications ─────────────────────────────────────────────────────────────

func (s *Server) handleSubmitPassApplication(w http.ResponseWriter, r *http.Request) {
	var req passApplicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := s.d.PassApps.Submit(r.Context(), req.UserID, req.PassApplicationPayload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleListPassApplications(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.PassApps.List(r.Context(), types.ApplicationStatus(r.URL.Query().Get("status")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDecidePassApplication(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := s.d.PassApps.Decide(r.Context(), r.PathValue("id"), req.Status, reviewer(r, req.ReviewerID), req.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleSubmitRoleUpgrade(w http.ResponseWriter, r *http.Request) {
	var req roleUpgradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := s.d.Upgrades.Submit(r.Context(), req.UserID, req.RoleUpgradePayload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleListRoleUpgrades(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Upgrades.List(r.Context(), types.ApplicationStatus(r.URL.Query().Get("status")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDecideRoleUpgrade(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := s.d.Upgrades.Decide(r.Context(), r.PathValue("id"), req.Status, reviewer(r, req.ReviewerID), req.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}
