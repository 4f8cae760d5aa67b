package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gauntlethq/gauntlet/pkg/middleware"
	"github.com/gauntlethq/gauntlet/pkg/services"
	"github.com/gauntlethq/gauntlet/pkg/storage"
)

// SecretRequest represents a request to create or update a secret
type SecretRequest struct {
	Value string `json:"value"`
}

// SecretResponse represents a secret in API responses. The value is never
// serialized back to clients.
type SecretResponse struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SecretListResponse represents a list of secrets
type SecretListResponse struct {
	Secrets []SecretResponse `json:"secrets"`
	Total   int              `json:"total"`
}

// secretsAccountID resolves the path account and enforces that callers
// only touch their own vault
func (s *Server) secretsAccountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := mux.Vars(r)["accountId"]

	authAccountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return "", false
	}

	if accountID != authAccountID {
		http.Error(w, "Access denied", http.StatusForbidden)
		return "", false
	}

	return accountID, true
}

// handleListSecrets handles GET /api/v1/accounts/{accountId}/secrets
func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.secretsAccountID(w, r)
	if !ok {
		return
	}

	var responses []SecretResponse

	// Prefer real timestamps when the vault service exposes them
	if vault, ok := s.secretVault.(*services.SecretVaultService); ok {
		secrets, err := vault.ListWithMetadata(accountID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list secrets: %v", err), http.StatusInternalServerError)
			return
		}
		responses = make([]SecretResponse, len(secrets))
		for i, secret := range secrets {
			responses[i] = SecretResponse{
				Key:       secret.Key,
				CreatedAt: secret.CreatedAt,
				UpdatedAt: secret.UpdatedAt,
			}
		}
	} else {
		keys, err := s.secretVault.List(accountID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list secrets: %v", err), http.StatusInternalServerError)
			return
		}
		responses = make([]SecretResponse, len(keys))
		for i, key := range keys {
			responses[i] = SecretResponse{Key: key}
		}
	}

	writeJSON(w, http.StatusOK, SecretListResponse{
		Secrets: responses,
		Total:   len(responses),
	})
}

// handleSetSecret handles POST and PUT of
// /api/v1/accounts/{accountId}/secrets/{key}
func (s *Server) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.secretsAccountID(w, r)
	if !ok {
		return
	}

	key := mux.Vars(r)["key"]
	if key == "" {
		http.Error(w, "Secret key cannot be empty", http.StatusBadRequest)
		return
	}

	var req SecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.secretVault.Set(accountID, key, req.Value); err != nil {
		http.Error(w, fmt.Sprintf("Failed to store secret: %v", err), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}

	writeJSON(w, status, SecretResponse{
		Key:       key,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
}

// handleDeleteSecret handles DELETE /api/v1/accounts/{accountId}/secrets/{key}
func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.secretsAccountID(w, r)
	if !ok {
		return
	}

	key := mux.Vars(r)["key"]
	if err := s.secretVault.Delete(accountID, key); err != nil {
		if errors.Is(err, storage.ErrSecretNotFound) {
			http.Error(w, "Secret not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to delete secret: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
