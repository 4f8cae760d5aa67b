package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gauntlethq/gauntlet/pkg/harness"
	"github.com/gauntlethq/gauntlet/pkg/middleware"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/workflow"
)

// StartSessionRequest opens a configuration session for a target pipeline
type StartSessionRequest struct {
	Pipeline string `json:"pipeline"`
}

// SelectTypeRequest picks the plugin type to configure
type SelectTypeRequest struct {
	Type string `json:"type"`
}

// AddInstanceRequest names and parameterizes the pending type
type AddInstanceRequest struct {
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// SessionTypesResponse carries the session and the family's type catalog
type SessionTypesResponse struct {
	Session workflow.Session     `json:"session"`
	Types   []plugins.Descriptor `json:"types"`
}

// SelectTypeResponse carries the session and the chosen descriptor
type SelectTypeResponse struct {
	Session    workflow.Session   `json:"session"`
	Descriptor plugins.Descriptor `json:"descriptor"`
}

// AddInstanceResponse carries the session and the persisted instance
type AddInstanceResponse struct {
	Session  workflow.Session       `json:"session"`
	Instance plugins.PluginInstance `json:"instance"`
}

// handleStartSession handles opening a configuration session
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pipeline := plugins.PipelineType(req.Pipeline)
	if _, err := plugins.FamilyForPipeline(pipeline); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	session, err := s.controller.StartSession(r.Context(), accountID, pipeline)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// handleGetSession handles retrieving a session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	session, err := s.controller.GetSession(r.Context(), accountID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// handleCancelSession handles abandoning an in-progress selection or
// configuration
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	session, err := s.controller.Cancel(r.Context(), accountID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// handleSessionTypes handles entering type selection and listing the
// family's types
func (s *Server) handleSessionTypes(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	session, descriptors, err := s.controller.BeginSelection(r.Context(), accountID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionTypesResponse{
		Session: session,
		Types:   descriptors,
	})
}

// handleSelectType handles picking the type to configure
func (s *Server) handleSelectType(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req SelectTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, descriptor, err := s.controller.SelectType(r.Context(), accountID, mux.Vars(r)["id"], req.Type)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SelectTypeResponse{
		Session:    session,
		Descriptor: descriptor,
	})
}

// handleSessionAddInstance handles validating and persisting the pending
// type as a named instance
func (s *Server) handleSessionAddInstance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req AddInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, instance, err := s.controller.Add(r.Context(), accountID, mux.Vars(r)["id"], req.Name, req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AddInstanceResponse{
		Session:  session,
		Instance: instance,
	})
}

// handleSessionListInstances handles listing the instances attached so far
func (s *Server) handleSessionListInstances(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	session, err := s.controller.GetSession(r.Context(), accountID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	instances, err := s.instances.List(accountID, session.Family)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instances)
}

// handleSessionRemoveInstance handles detaching an instance
func (s *Server) handleSessionRemoveInstance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	removed, err := s.controller.Remove(r.Context(), accountID, vars["id"], vars["instanceID"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RemovedResponse{Removed: removed})
}

// handleSessionTestInstance handles a synchronous ad-hoc test run
func (s *Server) handleSessionTestInstance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var input harness.TestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	vars := mux.Vars(r)
	result, err := s.controller.Test(r.Context(), accountID, vars["id"], vars["instanceID"], input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAdvanceSession handles closing configuration and returning the
// final instance list
func (s *Server) handleAdvanceSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	instances, err := s.controller.Advance(r.Context(), accountID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instances)
}
