package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gauntlethq/gauntlet/pkg/harness"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/registry"
	"github.com/gauntlethq/gauntlet/pkg/validation"
	"github.com/gauntlethq/gauntlet/pkg/workflow"
)

// ErrorResponse is the JSON body for failed requests
type ErrorResponse struct {
	Error  string                  `json:"error"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP statuses. Parameter rejections
// carry the full field list; plugin failures carry the backend's message.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *validation.Error
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "invalid parameters",
			Fields: validationErr.Fields,
		})
		return
	}

	if errors.Is(err, registry.ErrNameRequired) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  err.Error(),
			Fields: []validation.FieldError{{Field: "name", Message: "is required"}},
		})
		return
	}

	var duplicateErr *registry.DuplicateNameError
	if errors.As(err, &duplicateErr) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: duplicateErr.Error()})
		return
	}

	var unknownTypeErr *plugins.UnknownTypeError
	if errors.As(err, &unknownTypeErr) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: unknownTypeErr.Error()})
		return
	}

	if errors.Is(err, registry.ErrInstanceNotFound) || errors.Is(err, workflow.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	var transitionErr *workflow.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: transitionErr.Error()})
		return
	}

	if errors.Is(err, harness.ErrStaleInstance) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}

	var executionErr *harness.PluginExecutionError
	if errors.As(err, &executionErr) {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: executionErr.Error()})
		return
	}

	var storageErr *registry.StorageError
	if errors.As(err, &storageErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "storage failure"})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}
