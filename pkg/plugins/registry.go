package plugins

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Common registry errors
var (
	// ErrTypeAlreadyRegistered is returned when registering a duplicate type
	ErrTypeAlreadyRegistered = errors.New("plugin type already registered")

	// ErrInvalidDescriptor is returned when a descriptor fails validation
	ErrInvalidDescriptor = errors.New("invalid plugin descriptor")
)

// StandardRegistry is the default implementation of Registry. Families are
// strictly separated: a scorer type is never visible through the detector
// family and vice versa.
type StandardRegistry struct {
	descriptors map[Family]map[string]Descriptor
	mu          sync.RWMutex
}

// NewRegistry creates an empty plugin type registry.
func NewRegistry() *StandardRegistry {
	return &StandardRegistry{
		descriptors: map[Family]map[string]Descriptor{
			FamilyScorer:   {},
			FamilyDetector: {},
		},
	}
}

// Register adds a descriptor to its family. Registering a (family, type) pair
// twice is an error; schema changes ship as a new Version under a fresh
// registry build, not as in-place mutation.
func (r *StandardRegistry) Register(desc Descriptor) error {
	if err := checkDescriptor(desc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check if the type is already registered in this family
	family := r.descriptors[desc.Family]
	if _, exists := family[desc.Type]; exists {
		return fmt.Errorf("%w: %s '%s'", ErrTypeAlreadyRegistered, desc.Family, desc.Type)
	}

	family[desc.Type] = desc
	return nil
}

// RegisterAll registers a batch of descriptors, stopping at the first error.
func (r *StandardRegistry) RegisterAll(descs []Descriptor) error {
	for _, desc := range descs {
		if err := r.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

// ListTypes returns all descriptors for a family, sorted by type name.
// An unknown family yields an empty list.
func (r *StandardRegistry) ListTypes(family Family) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := r.descriptors[family]
	list := make([]Descriptor, 0, len(types))
	for _, desc := range types {
		list = append(list, desc)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Type < list[j].Type
	})
	return list
}

// GetDescriptor retrieves the descriptor for a type within a family.
func (r *StandardRegistry) GetDescriptor(family Family, typeName string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.descriptors[family][typeName]
	if !exists {
		return Descriptor{}, &UnknownTypeError{Family: family, TypeName: typeName}
	}
	return desc, nil
}

// checkDescriptor validates a descriptor before registration.
func checkDescriptor(desc Descriptor) error {
	if !desc.Family.Valid() {
		return fmt.Errorf("%w: unknown family '%s'", ErrInvalidDescriptor, desc.Family)
	}
	if desc.Type == "" {
		return fmt.Errorf("%w: type name is required", ErrInvalidDescriptor)
	}
	if desc.Version == "" {
		return fmt.Errorf("%w: version is required for type '%s'", ErrInvalidDescriptor, desc.Type)
	}

	seen := make(map[string]bool)
	for _, param := range desc.Parameters {
		if param.Name == "" {
			return fmt.Errorf("%w: type '%s' has a parameter without a name", ErrInvalidDescriptor, desc.Type)
		}
		if seen[param.Name] {
			return fmt.Errorf("%w: type '%s' declares parameter '%s' twice", ErrInvalidDescriptor, desc.Type, param.Name)
		}
		seen[param.Name] = true

		if !param.Kind.Valid() {
			return fmt.Errorf("%w: parameter '%s' of type '%s' has unknown kind '%s'",
				ErrInvalidDescriptor, param.Name, desc.Type, param.Kind)
		}
		if param.Required && param.Default != nil {
			return fmt.Errorf("%w: required parameter '%s' of type '%s' must not declare a default",
				ErrInvalidDescriptor, param.Name, desc.Type)
		}
	}
	return nil
}
