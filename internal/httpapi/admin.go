package httpapi

import (
	"net/http"

	"github.com/smartgate/server/internal/smartgate/service"
	"github.com/smartgate/server/internal/smartgate/types"
)

// ── Users ────────────────────────────────────────────────────────────────────

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Directory.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.UserInput
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.d.Directory.CreateUser(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req service.UserInput
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.d.Directory.UpdateUser(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Directory.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Vehicles ─────────────────────────────────────────────────────────────────

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Directory.ListVehicles(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req service.VehicleInput
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.d.Directory.CreateVehicle(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleUpdateVehicle(w http.ResponseWriter, r *http.Request) {
	var req service.VehicleInput
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.d.Directory.UpdateVehicle(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Directory.DeleteVehicle(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Gates ────────────────────────────────────────────────────────────────────

func (s *Server) handleListGates(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Gates.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateGate(w http.ResponseWriter, r *http.Request) {
	var req service.GateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.d.Gates.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleUpdateGate(w http.ResponseWriter, r *http.Request) {
	var req service.GateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.d.Gates.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGate(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Gates.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Venues ───────────────────────────────────────────────────────────────────

type venueEventRequest struct {
	VenueID   string          `json:"venue_id" validate:"required"`
	Direction types.Direction `json:"direction" validate:"required,oneof=entry exit"`
}

func (s *Server) handleListVenues(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Venues.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleParkingOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.d.Venues.Overview(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleCreateVenue(w http.ResponseWriter, r *http.Request) {
	var req service.VenueInput
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.d.Venues.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleUpdateVenue(w http.ResponseWriter, r *http.Request) {
	var req service.VenueInput
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.d.Venues.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVenue(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Venues.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVenueEvent(w http.ResponseWriter, r *http.Request) {
	var req venueEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mv, err := s.d.Venues.RecordEvent(r.Context(), req.VenueID, req.Direction)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mv)
}

// ── Payments ─────────────────────────────────────────────────────────────────

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.d.Ledger.Payments(r.Context(), service.PaymentQuery{
		SessionID: q.Get("session_id"),
		PassID:    q.Get("pass_id"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.d.Ledger.Payment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
