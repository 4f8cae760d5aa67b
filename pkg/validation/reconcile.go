package validation

import (
	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// Reconcile migrates stored parameter values onto the current descriptor
// version. Parameters the descriptor no longer declares are dropped, new
// optional parameters pick up their defaults, and a new required parameter
// with no stored value marks the instance stale. Stale instances stay
// listable but are refused by the test harness until re-saved.
func Reconcile(desc plugins.Descriptor, stored map[string]interface{}, storedVersion string) (map[string]interface{}, bool) {
	if storedVersion == desc.Version {
		migrated := make(map[string]interface{}, len(stored))
		for k, v := range stored {
			migrated[k] = v
		}
		return migrated, false
	}

	stale := false
	migrated := make(map[string]interface{}, len(desc.Parameters))
	for _, spec := range desc.Parameters {
		if value, ok := stored[spec.Name]; ok && value != nil {
			migrated[spec.Name] = value
			continue
		}
		if spec.Default != nil {
			migrated[spec.Name] = copyValue(spec.Default)
			continue
		}
		if spec.Required {
			stale = true
		}
	}
	return migrated, stale
}
