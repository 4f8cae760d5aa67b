// Package registry manages named plugin instances for accounts.
package registry

import (
	"fmt"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// InstanceRegistry manages the plugin instances attached to a target by an
// account. All operations are owner-scoped; one owner can never see or
// touch another owner's instances.
type InstanceRegistry interface {
	// Add validates raw parameters against the type's descriptor and
	// persists a new named instance. The human-facing name must be unique
	// per owner and family.
	Add(ownerID string, family plugins.Family, typeName, name string, params map[string]interface{}) (plugins.PluginInstance, error)

	// Update replaces the parameters (and optionally the name) of an
	// existing instance wholesale after validating them
	Update(ownerID string, family plugins.Family, instanceID, name string, params map[string]interface{}) (plugins.PluginInstance, error)

	// List returns the owner's instances of a family in creation order,
	// with stored parameters reconciled against the current descriptors
	List(ownerID string, family plugins.Family) ([]plugins.PluginInstance, error)

	// Get retrieves one instance, reconciled against the current descriptor
	Get(ownerID string, family plugins.Family, instanceID string) (plugins.PluginInstance, error)

	// Remove deletes an instance. It reports whether an instance was
	// removed; removing an absent or non-owned instance is not an error.
	Remove(ownerID string, family plugins.Family, instanceID string) (bool, error)
}

// DuplicateNameError reports an instance name already in use within an
// owner's family.
type DuplicateNameError struct {
	// Family of the conflicting instance
	Family plugins.Family

	// Name that is already taken
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("a %s instance named '%s' already exists", e.Family, e.Name)
}

// StorageError wraps a persistence failure so callers can tell a backend
// outage apart from domain errors.
type StorageError struct {
	// Op is the operation that failed
	Op string

	// Err is the underlying storage error
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying storage error
func (e *StorageError) Unwrap() error {
	return e.Err
}
