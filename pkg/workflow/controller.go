package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gauntlethq/gauntlet/pkg/harness"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/registry"
	"github.com/gauntlethq/gauntlet/pkg/validation"
)

// DefaultSessionTTL is how long an idle session survives before the reaper
// collects it. Every successful operation pushes the expiry out again.
const DefaultSessionTTL = 30 * time.Minute

// WorkflowController is the default implementation of Controller.
type WorkflowController struct {
	sessions  SessionStore
	instances registry.InstanceRegistry
	types     plugins.Registry
	harness   harness.Harness
	ttl       time.Duration
}

// NewController creates a workflow controller. A TTL of zero or below falls
// back to DefaultSessionTTL.
func NewController(sessions SessionStore, instances registry.InstanceRegistry, types plugins.Registry, h harness.Harness, ttl time.Duration) Controller {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &WorkflowController{
		sessions:  sessions,
		instances: instances,
		types:     types,
		harness:   h,
		ttl:       ttl,
	}
}

// StartSession opens an idle session for a target pipeline.
func (c *WorkflowController) StartSession(ctx context.Context, ownerID string, pipeline plugins.PipelineType) (Session, error) {
	family, err := plugins.FamilyForPipeline(pipeline)
	if err != nil {
		return Session{}, err
	}

	now := time.Now().UTC()
	session := Session{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Pipeline:  pipeline,
		Family:    family,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	if err := c.sessions.Save(ctx, session); err != nil {
		return Session{}, err
	}

	return session, nil
}

// GetSession retrieves a session.
func (c *WorkflowController) GetSession(ctx context.Context, ownerID, sessionID string) (Session, error) {
	return c.sessions.Get(ctx, ownerID, sessionID)
}

// touch bumps the activity timestamps ahead of a save.
func (c *WorkflowController) touch(session *Session) {
	now := time.Now().UTC()
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(c.ttl)
}

// BeginSelection moves an idle session into type selection and lists the
// family's available types.
func (c *WorkflowController) BeginSelection(ctx context.Context, ownerID, sessionID string) (Session, []plugins.Descriptor, error) {
	session, err := c.sessions.Get(ctx, ownerID, sessionID)
	if err != nil {
		return Session{}, nil, err
	}
	if session.State != StateIdle {
		return Session{}, nil, &InvalidTransitionError{Op: "begin type selection", From: session.State}
	}

	session.State = StateSelectingType
	c.touch(&session)
	if err := c.sessions.Save(ctx, session); err != nil {
		return Session{}, nil, err
	}

	return session, c.types.ListTypes(session.Family), nil
}

// SelectType picks a type to configure. An unknown type leaves the session
// in selecting_type.
func (c *WorkflowController) SelectType(ctx context.Context, ownerID, sessionID, typeName string) (Session, plugins.Descriptor, error) {
	session, err := c.sessions.Get(ctx, ownerID, sessionID)
	if err != nil {
		return Session{}, plugins.Descriptor{}, err
	}
	if session.State != StateSelectingType {
		return Session{}, plugins.Descriptor{}, &InvalidTransitionError{Op: "select a type", From: session.State}
	}

	desc, err := c.types.GetDescriptor(session.Family, typeName)
	if err != nil {
		return Session{}, plugins.Descriptor{}, err
	}

	session.State = StateConfiguringParams
	session.PendingType = typeName
	session.LastErrors = nil
	c.touch(&session)
	if err := c.sessions.Save(ctx, session); err != nil {
		return Session{}, plugins.Descriptor{}, err
	}

	return session, desc, nil
}

// Add validates the parameters and persists a named instance of the pending
// type. Rejected input keeps the session in configuring_params with the
// field errors recorded on it.
func (c *WorkflowController) Add(ctx context.Context, ownerID, sessionID, name string, params map[string]interface{}) (Session, plugins.PluginInstance, error) {
	session, err := c.sessions.Get(ctx, ownerID, sessionID)
	if err != nil {
		return Session{}, plugins.PluginInstance{}, err
	}
	if session.State != StateConfiguringParams {
		return Session{}, plugins.PluginInstance{}, &InvalidTransitionError{Op: "add an instance", From: session.State}
	}

	instance, err := c.instances.Add(ownerID, session.Family, session.PendingType, name, params)
	if err != nil {
		if fields, ok := rejectionFields(err); ok {
			session.LastErrors = fields
			c.touch(&session)
			if saveErr := c.sessions.Save(ctx, session); saveErr != nil {
				return Session{}, plugins.PluginInstance{}, saveErr
			}
			return session, plugins.PluginInstance{}, err
		}
		return Session{}, plugins.PluginInstance{}, err
	}

	session.State = StateIdle
	session.PendingType = ""
	session.LastErrors = nil
	c.touch(&session)
	if err := c.sessions.Save(ctx, session); err != nil {
		return Session{}, plugins.PluginInstance{}, err
	}

	return session, instance, nil
}

// rejectionFields maps a rejected add onto per-field errors. Backend
// failures are not rejections and report false.
func rejectionFields(err error) ([]validation.FieldError, bool) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.Fields, true
	}

	var dupErr *registry.DuplicateNameError
	if errors.As(err, &dupErr) {
		return []validation.FieldError{{Field: "name", Message: dupErr.Error()}}, true
	}

	if errors.Is(err, registry.ErrNameRequired) {
		return []validation.FieldError{{Field: "name", Message: "is required"}}, true
	}

	return nil, false
}

// Cancel abandons type selection or parameter configuration without
// persisting anything.
func (c *WorkflowController) Cancel(ctx context.Context, ownerID, sessionID string) (Session, error) {
	session, err := c.sessions.Get(ctx, ownerID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if session.State != StateSelectingType && session.State != StateConfiguringParams {
		return Session{}, &InvalidTransitionError{Op: "cancel", From: session.State}
	}

	session.State = StateIdle
	session.PendingType = ""
	session.LastErrors = nil
	c.touch(&session)
	if err := c.sessions.Save(ctx, session); err != nil {
		return Session{}, err
	}

	return session, nil
}

// Test runs a synchronous ad-hoc test of one attached instance. The session
// passes through testing for the duration of the call and lands back on
// idle whatever the outcome.
func (c *WorkflowController) Test(ctx context.Context, ownerID, sessionID, instanceID string, input harness.TestInput) (harness.TestResult, error) {
	session, err := c.sessions.Get(ctx, ownerID, sessionID)
	if err != nil {
		return harness.TestResult{}, err
	}
	if session.State != StateIdle {
		return harness.TestResult{}, &InvalidTransitionError{Op: "run a test", From: session.State}
	}

	session.State = StateTesting
	c.touch(&session)
	if err := c.sessions.Save(ctx, session); err != nil {
		return harness.TestResult{}, err
	}

	var result harness.TestResult
	instance, err := c.instances.Get(ownerID, session.Family, instanceID)
	if err == nil {
		result, err = c.harness.RunTest(ctx, instance, input)
	}

	session.State = StateIdle
	c.touch(&session)
	if saveErr := c.sessions.Save(ctx, session); saveErr != nil && err == nil {
		err = saveErr
	}

	return result, err
}

// Remove deletes an attached instance from an idle session.
func (c *WorkflowController) Remove(ctx context.Context, ownerID, sessionID, instanceID string) (bool, error) {
	session, err := c.sessions.Get(ctx, ownerID, sessionID)
	if err != nil {
		return false, err
	}
	if session.State != StateIdle {
		return false, &InvalidTransitionError{Op: "remove an instance", From: session.State}
	}

	removed, err := c.instances.Remove(ownerID, session.Family, instanceID)
	if err != nil {
		return false, err
	}

	c.touch(&session)
	if err := c.sessions.Save(ctx, session); err != nil {
		return removed, err
	}

	return removed, nil
}

// Advance closes the configuration stage and returns the final instance
// list for the downstream orchestrator stage.
func (c *WorkflowController) Advance(ctx context.Context, ownerID, sessionID string) ([]plugins.PluginInstance, error) {
	session, err := c.sessions.Get(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != StateIdle {
		return nil, &InvalidTransitionError{Op: "advance", From: session.State}
	}

	instances, err := c.instances.List(ownerID, session.Family)
	if err != nil {
		return nil, err
	}

	session.Advanced = true
	c.touch(&session)
	if err := c.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	return instances, nil
}
