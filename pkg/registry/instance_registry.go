package registry

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/storage"
	"github.com/gauntlethq/gauntlet/pkg/validation"
)

// Common registry errors
var (
	// ErrNameRequired is returned when an instance name is empty
	ErrNameRequired = errors.New("instance name is required")

	// ErrInstanceNotFound is returned when an instance does not exist for
	// the owner
	ErrInstanceNotFound = errors.New("plugin instance not found")
)

// ownerLockCount is the number of striped owner locks
const ownerLockCount = 64

// InstanceRegistryService is the default implementation of InstanceRegistry.
// Writes for one owner are serialized through striped locks so a duplicate
// name check and the save it guards always commit together.
type InstanceRegistryService struct {
	store storage.InstanceStore
	types plugins.Registry
	locks [ownerLockCount]sync.Mutex
}

// NewInstanceRegistry creates a new instance registry backed by the given
// store and plugin type registry.
func NewInstanceRegistry(store storage.InstanceStore, types plugins.Registry) InstanceRegistry {
	return &InstanceRegistryService{
		store: store,
		types: types,
	}
}

// ownerLock returns the stripe lock for an owner
func (r *InstanceRegistryService) ownerLock(ownerID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ownerID))
	return &r.locks[h.Sum32()%ownerLockCount]
}

// Add validates raw parameters against the type's descriptor and persists a
// new named instance.
func (r *InstanceRegistryService) Add(ownerID string, family plugins.Family, typeName, name string, params map[string]interface{}) (plugins.PluginInstance, error) {
	if name == "" {
		return plugins.PluginInstance{}, ErrNameRequired
	}

	desc, err := r.types.GetDescriptor(family, typeName)
	if err != nil {
		return plugins.PluginInstance{}, err
	}

	validated, err := validation.Validate(desc, params)
	if err != nil {
		return plugins.PluginInstance{}, err
	}

	lock := r.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	// Check the name is free before persisting
	count, err := r.store.CountByName(ownerID, family, name)
	if err != nil {
		return plugins.PluginInstance{}, &StorageError{Op: "count instances", Err: err}
	}
	if count > 0 {
		return plugins.PluginInstance{}, &DuplicateNameError{Family: family, Name: name}
	}

	instance := plugins.PluginInstance{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Family:            family,
		Type:              typeName,
		Name:              name,
		Parameters:        validated,
		DescriptorVersion: desc.Version,
		CreatedAt:         time.Now().UTC(),
	}

	if err := r.store.SaveInstance(instance); err != nil {
		return plugins.PluginInstance{}, &StorageError{Op: "save instance", Err: err}
	}

	return instance, nil
}

// Update replaces the parameters (and optionally the name) of an existing
// instance wholesale. The instance keeps its ID and creation time; the
// descriptor version is re-stamped from the current descriptor.
func (r *InstanceRegistryService) Update(ownerID string, family plugins.Family, instanceID, name string, params map[string]interface{}) (plugins.PluginInstance, error) {
	lock := r.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.store.GetInstance(ownerID, family, instanceID)
	if err != nil {
		if errors.Is(err, storage.ErrInstanceNotFound) {
			return plugins.PluginInstance{}, ErrInstanceNotFound
		}
		return plugins.PluginInstance{}, &StorageError{Op: "get instance", Err: err}
	}

	desc, err := r.types.GetDescriptor(family, existing.Type)
	if err != nil {
		return plugins.PluginInstance{}, err
	}

	validated, err := validation.Validate(desc, params)
	if err != nil {
		return plugins.PluginInstance{}, err
	}

	// Renames must not collide with another instance
	if name == "" {
		name = existing.Name
	}
	if name != existing.Name {
		count, err := r.store.CountByName(ownerID, family, name)
		if err != nil {
			return plugins.PluginInstance{}, &StorageError{Op: "count instances", Err: err}
		}
		if count > 0 {
			return plugins.PluginInstance{}, &DuplicateNameError{Family: family, Name: name}
		}
	}

	updated := existing
	updated.Name = name
	updated.Parameters = validated
	updated.DescriptorVersion = desc.Version
	updated.Stale = false

	if err := r.store.SaveInstance(updated); err != nil {
		return plugins.PluginInstance{}, &StorageError{Op: "save instance", Err: err}
	}

	return updated, nil
}

// List returns the owner's instances of a family in creation order.
func (r *InstanceRegistryService) List(ownerID string, family plugins.Family) ([]plugins.PluginInstance, error) {
	stored, err := r.store.ListInstances(ownerID, family)
	if err != nil {
		return nil, &StorageError{Op: "list instances", Err: err}
	}

	instances := make([]plugins.PluginInstance, 0, len(stored))
	for _, instance := range stored {
		instances = append(instances, r.reconcile(instance))
	}

	return instances, nil
}

// Get retrieves one instance.
func (r *InstanceRegistryService) Get(ownerID string, family plugins.Family, instanceID string) (plugins.PluginInstance, error) {
	instance, err := r.store.GetInstance(ownerID, family, instanceID)
	if err != nil {
		if errors.Is(err, storage.ErrInstanceNotFound) {
			return plugins.PluginInstance{}, ErrInstanceNotFound
		}
		return plugins.PluginInstance{}, &StorageError{Op: "get instance", Err: err}
	}

	return r.reconcile(instance), nil
}

// Remove deletes an instance, reporting whether anything was removed.
func (r *InstanceRegistryService) Remove(ownerID string, family plugins.Family, instanceID string) (bool, error) {
	lock := r.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	err := r.store.DeleteInstance(ownerID, family, instanceID)
	if err != nil {
		if errors.Is(err, storage.ErrInstanceNotFound) {
			// Removal is idempotent
			return false, nil
		}
		return false, &StorageError{Op: "delete instance", Err: err}
	}

	return true, nil
}

// reconcile migrates stored parameters onto the current descriptor version.
// An instance whose type has left the catalog, or whose stored parameters
// miss a newly required value, is flagged stale; stale instances are listed
// but refuse test execution.
func (r *InstanceRegistryService) reconcile(instance plugins.PluginInstance) plugins.PluginInstance {
	desc, err := r.types.GetDescriptor(instance.Family, instance.Type)
	if err != nil {
		instance.Stale = true
		return instance
	}

	params, stale := validation.Reconcile(desc, instance.Parameters, instance.DescriptorVersion)
	instance.Parameters = params
	instance.Stale = stale
	return instance
}
