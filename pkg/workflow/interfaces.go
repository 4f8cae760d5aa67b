// Package workflow drives the guided attach-and-configure flow for plugin
// instances.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gauntlethq/gauntlet/pkg/harness"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/validation"
)

// ErrSessionNotFound is returned when a session does not exist for the
// owner or has expired.
var ErrSessionNotFound = errors.New("session not found")

// State is the position of a session in the configuration flow.
type State string

const (
	// StateIdle means no configuration step is in progress
	StateIdle State = "idle"

	// StateSelectingType means the owner is choosing a plugin type
	StateSelectingType State = "selecting_type"

	// StateConfiguringParams means the owner is filling in parameters for
	// the pending type
	StateConfiguringParams State = "configuring_params"

	// StateTesting marks a synchronous ad-hoc test in flight
	StateTesting State = "testing"
)

// Session is one owner's configuration flow against a target. The family is
// fixed at creation from the target's pipeline type and never changes.
type Session struct {
	// ID of the session
	ID string `json:"id"`

	// OwnerID is the account driving the session
	OwnerID string `json:"owner_id"`

	// Pipeline the target runs on
	Pipeline plugins.PipelineType `json:"pipeline"`

	// Family of plugins this session configures, derived from Pipeline
	Family plugins.Family `json:"family"`

	// State is the current flow position
	State State `json:"state"`

	// PendingType is the plugin type being configured, when in
	// configuring_params
	PendingType string `json:"pending_type,omitempty"`

	// LastErrors holds the field errors from the most recent rejected
	// configuration attempt
	LastErrors []validation.FieldError `json:"last_errors,omitempty"`

	// Advanced is set once the owner moves on to orchestrator
	// configuration
	Advanced bool `json:"advanced"`

	// CreatedAt is when the session started
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the session last changed
	UpdatedAt time.Time `json:"updated_at"`

	// ExpiresAt is when the session is reaped
	ExpiresAt time.Time `json:"expires_at"`
}

// Controller runs the configuration flow. It is the only family-aware
// component: callers hand it a session and it dispatches registry,
// validation and harness calls for that session's family.
type Controller interface {
	// StartSession opens an idle session for a target pipeline
	StartSession(ctx context.Context, ownerID string, pipeline plugins.PipelineType) (Session, error)

	// GetSession retrieves a session
	GetSession(ctx context.Context, ownerID, sessionID string) (Session, error)

	// BeginSelection moves an idle session into type selection and lists
	// the family's available types
	BeginSelection(ctx context.Context, ownerID, sessionID string) (Session, []plugins.Descriptor, error)

	// SelectType picks a type to configure. The descriptor must exist;
	// otherwise the session stays in selecting_type.
	SelectType(ctx context.Context, ownerID, sessionID, typeName string) (Session, plugins.Descriptor, error)

	// Add validates the parameters and persists a named instance of the
	// pending type. Validation failures keep the session in
	// configuring_params with the field errors recorded on it.
	Add(ctx context.Context, ownerID, sessionID, name string, params map[string]interface{}) (Session, plugins.PluginInstance, error)

	// Cancel abandons type selection or parameter configuration without
	// persisting anything
	Cancel(ctx context.Context, ownerID, sessionID string) (Session, error)

	// Test runs a synchronous ad-hoc test of one attached instance
	Test(ctx context.Context, ownerID, sessionID, instanceID string, input harness.TestInput) (harness.TestResult, error)

	// Remove deletes an attached instance, reporting whether anything was
	// removed
	Remove(ctx context.Context, ownerID, sessionID, instanceID string) (bool, error)

	// Advance closes the configuration stage and returns the final
	// instance list for the downstream orchestrator stage
	Advance(ctx context.Context, ownerID, sessionID string) ([]plugins.PluginInstance, error)
}

// SessionStore persists editing sessions.
type SessionStore interface {
	// Save stores a session
	Save(ctx context.Context, session Session) error

	// Get retrieves a session by owner and ID
	Get(ctx context.Context, ownerID, sessionID string) (Session, error)

	// Delete removes a session
	Delete(ctx context.Context, ownerID, sessionID string) error

	// DeleteExpired removes every expired session and reports how many
	// were swept
	DeleteExpired(ctx context.Context) (int, error)
}

// InvalidTransitionError reports an operation attempted from the wrong
// session state.
type InvalidTransitionError struct {
	// Op is the attempted operation
	Op string

	// From is the state the session was in
	From State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state '%s'", e.Op, e.From)
}
