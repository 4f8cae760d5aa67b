// Package plugins provides descriptors and registries for scorer and detector plugins.
package plugins

import (
	"fmt"
	"time"
)

// Family identifies which plugin ecosystem a type belongs to.
type Family string

const (
	// FamilyScorer is the PyRIT-backed scorer ecosystem
	FamilyScorer Family = "scorer"

	// FamilyDetector is the garak-backed detector ecosystem
	FamilyDetector Family = "detector"
)

// Valid reports whether the family is one of the two known ecosystems.
func (f Family) Valid() bool {
	return f == FamilyScorer || f == FamilyDetector
}

// PipelineType is the upstream pipeline selection that fixes the plugin family
// for an editing session.
type PipelineType string

const (
	// PipelinePyRIT selects the scorer family
	PipelinePyRIT PipelineType = "pyrit-based"

	// PipelineGarak selects the detector family
	PipelineGarak PipelineType = "garak-based"
)

// FamilyForPipeline maps a pipeline type to its plugin family.
func FamilyForPipeline(p PipelineType) (Family, error) {
	switch p {
	case PipelinePyRIT:
		return FamilyScorer, nil
	case PipelineGarak:
		return FamilyDetector, nil
	default:
		return "", fmt.Errorf("unknown pipeline type '%s'", p)
	}
}

// ParameterKind is the declared type of a plugin parameter.
type ParameterKind string

const (
	KindString ParameterKind = "string"
	KindInt    ParameterKind = "int"
	KindFloat  ParameterKind = "float"
	KindBool   ParameterKind = "bool"
	KindList   ParameterKind = "list"
	KindMap    ParameterKind = "map"

	// KindSecret is a string parameter whose stored value is a vault key,
	// resolved to the real credential only at execution time
	KindSecret ParameterKind = "secret"
)

// Valid reports whether the kind is one of the declared parameter kinds.
func (k ParameterKind) Valid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindList, KindMap, KindSecret:
		return true
	}
	return false
}

// Constraints restricts the values a parameter accepts.
type Constraints struct {
	// Min is the inclusive lower bound for numeric kinds
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the inclusive upper bound for numeric kinds
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// MinLength is the minimum length for string and list kinds
	MinLength *int `json:"min_length,omitempty" yaml:"min_length,omitempty"`

	// MaxLength is the maximum length for string and list kinds
	MaxLength *int `json:"max_length,omitempty" yaml:"max_length,omitempty"`

	// Enum lists the permitted values for string kinds
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`

	// Pattern is a regular expression string values must match
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Empty reports whether no constraint is set.
func (c Constraints) Empty() bool {
	return c.Min == nil && c.Max == nil && c.MinLength == nil && c.MaxLength == nil &&
		len(c.Enum) == 0 && c.Pattern == ""
}

// ParameterSpec describes one configurable parameter of a plugin type.
type ParameterSpec struct {
	// Name of the parameter
	Name string `json:"name" yaml:"name"`

	// Kind of the parameter
	Kind ParameterKind `json:"kind" yaml:"kind"`

	// Description of the parameter
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Required indicates whether the parameter must be supplied
	Required bool `json:"required" yaml:"required"`

	// Default is the value used when an optional parameter is absent
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`

	// Constraints restrict the accepted values
	Constraints Constraints `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Transport selects how a plugin type is invoked by the test harness.
type Transport string

const (
	// TransportHTTP posts the invocation to the family backend service
	TransportHTTP Transport = "http"

	// TransportCommand runs the invocation through a subprocess
	TransportCommand Transport = "command"

	// TransportScript evaluates a JavaScript program in-process
	TransportScript Transport = "script"

	// TransportSSE subscribes to a server-sent event stream of scores
	TransportSSE Transport = "sse"
)

// ExecutionSpec tells the harness how to reach the underlying plugin.
type ExecutionSpec struct {
	// Transport selects the invocation mechanism
	Transport Transport `json:"transport" yaml:"transport"`

	// Path is appended to the family backend base URL for http and sse transports
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Command is the executable for the command transport
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// Args are fixed arguments passed before the invocation payload
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Script is the default program for the script transport; a "script"
	// parameter on the instance overrides it
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
}

// Descriptor is the declarative schema of a plugin type. Descriptors are
// immutable once registered; a parameter change ships as a new Version.
type Descriptor struct {
	// Family of the plugin type
	Family Family `json:"family" yaml:"family"`

	// Type is the name of the plugin type within its family
	Type string `json:"type" yaml:"type"`

	// Version of the parameter schema
	Version string `json:"version" yaml:"version"`

	// Description of the plugin type
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Execution tells the harness how to invoke the plugin
	Execution ExecutionSpec `json:"execution" yaml:"execution"`

	// Parameters is the ordered parameter schema
	Parameters []ParameterSpec `json:"parameters" yaml:"parameters"`
}

// Param returns the spec for a named parameter.
func (d Descriptor) Param(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Registry exposes the available plugin types for each family.
// Implementations are safe for concurrent use.
type Registry interface {
	// ListTypes returns all descriptors for a family, sorted by type name
	ListTypes(family Family) []Descriptor

	// GetDescriptor retrieves the descriptor for a type within a family.
	// A miss returns an *UnknownTypeError.
	GetDescriptor(family Family, typeName string) (Descriptor, error)
}

// PluginInstance is a named, parameterized, persisted configuration of a
// plugin type. Instances are replaced wholesale on edit, never mutated.
type PluginInstance struct {
	// ID of the instance
	ID string `json:"id"`

	// OwnerID is the account that configured the instance
	OwnerID string `json:"owner_id"`

	// Family of the configured plugin type
	Family Family `json:"family"`

	// Type is the plugin type name
	Type string `json:"type"`

	// Name is the human-facing name, unique per owner and family
	Name string `json:"name"`

	// Parameters holds the validated parameter values
	Parameters map[string]interface{} `json:"parameters"`

	// DescriptorVersion records the schema version the parameters were
	// validated against
	DescriptorVersion string `json:"descriptor_version"`

	// CreatedAt is when the instance was added
	CreatedAt time.Time `json:"created_at"`

	// Stale marks an instance whose stored parameters no longer satisfy the
	// current descriptor. Computed on read, never persisted.
	Stale bool `json:"stale,omitempty"`
}

// UnknownTypeError reports a descriptor lookup miss.
type UnknownTypeError struct {
	// Family that was searched
	Family Family

	// TypeName that was not found
	TypeName string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown %s type '%s'", e.Family, e.TypeName)
}
