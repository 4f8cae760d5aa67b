package registry

import (
	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/storage"
)

// failingInstanceStore wraps a real store and fails selected operations, for
// exercising the storage error paths.
type failingInstanceStore struct {
	storage.InstanceStore
	saveErr   error
	countErr  error
	getErr    error
	listErr   error
	deleteErr error
}

func (s *failingInstanceStore) SaveInstance(instance plugins.PluginInstance) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.InstanceStore.SaveInstance(instance)
}

func (s *failingInstanceStore) CountByName(ownerID string, family plugins.Family, name string) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.InstanceStore.CountByName(ownerID, family, name)
}

func (s *failingInstanceStore) GetInstance(ownerID string, family plugins.Family, instanceID string) (plugins.PluginInstance, error) {
	if s.getErr != nil {
		return plugins.PluginInstance{}, s.getErr
	}
	return s.InstanceStore.GetInstance(ownerID, family, instanceID)
}

func (s *failingInstanceStore) ListInstances(ownerID string, family plugins.Family) ([]plugins.PluginInstance, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.InstanceStore.ListInstances(ownerID, family)
}

func (s *failingInstanceStore) DeleteInstance(ownerID string, family plugins.Family, instanceID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.InstanceStore.DeleteInstance(ownerID, family, instanceID)
}
