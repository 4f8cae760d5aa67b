package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// TypeListResponse represents the catalog of a plugin family
type TypeListResponse struct {
	Family plugins.Family       `json:"family"`
	Types  []plugins.Descriptor `json:"types"`
	Total  int                  `json:"total"`
}

func familyFromPath(r *http.Request) (plugins.Family, bool) {
	family := plugins.Family(mux.Vars(r)["family"])
	return family, family.Valid()
}

// handleListTypes handles listing the descriptors of a family
func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	family, ok := familyFromPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown plugin family"})
		return
	}

	descriptors := s.types.ListTypes(family)
	writeJSON(w, http.StatusOK, TypeListResponse{
		Family: family,
		Types:  descriptors,
		Total:  len(descriptors),
	})
}

// handleGetType handles retrieving one descriptor
func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	family, ok := familyFromPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown plugin family"})
		return
	}

	descriptor, err := s.types.GetDescriptor(family, mux.Vars(r)["type"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, descriptor)
}
