package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gauntlethq/gauntlet/pkg/middleware"
)

// UpdateInstanceRequest represents a wholesale instance update
type UpdateInstanceRequest struct {
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// RemovedResponse reports whether a delete removed anything
type RemovedResponse struct {
	Removed bool `json:"removed"`
}

// handleListInstances handles listing an owner's instances of a family
func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	family, ok := familyFromPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown plugin family"})
		return
	}

	instances, err := s.instances.List(accountID, family)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instances)
}

// handleGetInstance handles retrieving one instance
func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	family, ok := familyFromPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown plugin family"})
		return
	}

	instance, err := s.instances.Get(accountID, family, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instance)
}

// handleUpdateInstance handles replacing an instance's name and parameters
func (s *Server) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	family, ok := familyFromPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown plugin family"})
		return
	}

	var req UpdateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	instance, err := s.instances.Update(accountID, family, mux.Vars(r)["id"], req.Name, req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instance)
}

// handleDeleteInstance handles deleting an instance outside of a session
func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	family, ok := familyFromPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown plugin family"})
		return
	}

	removed, err := s.instances.Remove(accountID, family, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RemovedResponse{Removed: removed})
}
