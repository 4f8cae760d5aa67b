package plugins

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk format for additional plugin type descriptors.
// Catalog files let operators expose ecosystem types beyond the built-ins
// without a rebuild.
type Catalog struct {
	Types []Descriptor `yaml:"types"`
}

// BuiltinScorers returns the descriptors for the scorer types shipped with
// the service. The set mirrors the scorers exposed by the PyRIT backend.
func BuiltinScorers() []Descriptor {
	return []Descriptor{
		{
			Family:      FamilyScorer,
			Type:        "substring",
			Version:     "1",
			Description: "Flags responses that contain a given substring",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/score/substring"},
			Parameters: []ParameterSpec{
				{
					Name:        "substring",
					Kind:        KindString,
					Description: "Text to search for in the target response",
					Required:    true,
					Constraints: Constraints{MinLength: intPtr(1)},
				},
				{
					Name:        "category",
					Kind:        KindString,
					Description: "Score category reported on a match",
					Default:     "match",
				},
				{
					Name:        "case_sensitive",
					Kind:        KindBool,
					Description: "Match with case sensitivity",
					Default:     false,
				},
			},
		},
		{
			Family:      FamilyScorer,
			Type:        "self_ask_true_false",
			Version:     "1",
			Description: "Asks an evaluation model a true/false question about the response",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/score/self_ask_true_false"},
			Parameters: []ParameterSpec{
				{
					Name:        "question",
					Kind:        KindString,
					Description: "True/false question posed to the evaluation model",
					Required:    true,
					Constraints: Constraints{MinLength: intPtr(1)},
				},
				{
					Name:        "system_prompt",
					Kind:        KindString,
					Description: "Override for the evaluator system prompt",
				},
				{
					Name:        "api_key",
					Kind:        KindSecret,
					Description: "Vault key for the evaluation model credential",
				},
			},
		},
		{
			Family:      FamilyScorer,
			Type:        "self_ask_likert",
			Version:     "1",
			Description: "Scores the response on a Likert scale via an evaluation model",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/score/self_ask_likert"},
			Parameters: []ParameterSpec{
				{
					Name:        "likert_scale",
					Kind:        KindString,
					Description: "Harm dimension the scale measures",
					Required:    true,
					Constraints: Constraints{
						Enum: []string{"harm", "hate_speech", "fairness_bias", "misinformation", "persuasion", "sexual", "violence"},
					},
				},
				{
					Name:        "system_prompt",
					Kind:        KindString,
					Description: "Override for the evaluator system prompt",
				},
				{
					Name:        "api_key",
					Kind:        KindSecret,
					Description: "Vault key for the evaluation model credential",
				},
			},
		},
		{
			Family:      FamilyScorer,
			Type:        "float_scale_threshold",
			Version:     "1",
			Description: "Converts a float-scale score into a pass/fail verdict at a threshold",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/score/float_scale_threshold"},
			Parameters: []ParameterSpec{
				{
					Name:        "threshold",
					Kind:        KindFloat,
					Description: "Scores at or above this value count as a hit",
					Required:    true,
					Constraints: Constraints{Min: floatPtr(0), Max: floatPtr(1)},
				},
			},
		},
		{
			Family:      FamilyScorer,
			Type:        "azure_content_filter",
			Version:     "1",
			Description: "Scores the response with the Azure Content Safety service",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/score/azure_content_filter"},
			Parameters: []ParameterSpec{
				{
					Name:        "endpoint",
					Kind:        KindString,
					Description: "Azure Content Safety endpoint URL",
					Required:    true,
					Constraints: Constraints{Pattern: `^https?://`},
				},
				{
					Name:        "api_key",
					Kind:        KindSecret,
					Description: "Vault key for the Azure credential",
					Required:    true,
				},
				{
					Name:        "harm_categories",
					Kind:        KindList,
					Description: "Harm categories to evaluate",
					Default:     []interface{}{"Hate", "SelfHarm", "Sexual", "Violence"},
				},
			},
		},
		{
			Family:      FamilyScorer,
			Type:        "refusal",
			Version:     "1",
			Description: "Detects whether the target refused to answer the prompt",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/score/refusal"},
			Parameters: []ParameterSpec{
				{
					Name:        "include_objective",
					Kind:        KindBool,
					Description: "Give the evaluator the attack objective for context",
					Default:     true,
				},
			},
		},
	}
}

// BuiltinDetectors returns the descriptors for the detector types shipped
// with the service. The set mirrors the detectors exposed by the garak
// backend.
func BuiltinDetectors() []Descriptor {
	return []Descriptor{
		{
			Family:      FamilyDetector,
			Type:        "toxicity",
			Version:     "1",
			Description: "Classifies output toxicity with a hosted toxicity model",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/detect/toxicity"},
			Parameters: []ParameterSpec{
				{
					Name:        "threshold",
					Kind:        KindFloat,
					Description: "Minimum model confidence counted as toxic",
					Required:    true,
					Constraints: Constraints{Min: floatPtr(0), Max: floatPtr(1)},
				},
				{
					Name:        "detector_model",
					Kind:        KindString,
					Description: "Hugging Face model id used for classification",
					Default:     "unitary/toxic-bert",
				},
			},
		},
		{
			Family:      FamilyDetector,
			Type:        "trigger_list",
			Version:     "1",
			Description: "Flags output containing any of a list of trigger strings",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/detect/trigger_list"},
			Parameters: []ParameterSpec{
				{
					Name:        "triggers",
					Kind:        KindList,
					Description: "Strings whose presence marks a hit",
					Required:    true,
					Constraints: Constraints{MinLength: intPtr(1)},
				},
				{
					Name:        "matchtype",
					Kind:        KindString,
					Description: "Whether triggers match whole words or raw substrings",
					Default:     "str",
					Constraints: Constraints{Enum: []string{"str", "word"}},
				},
				{
					Name:        "case_sensitive",
					Kind:        KindBool,
					Description: "Match triggers with case sensitivity",
					Default:     false,
				},
			},
		},
		{
			Family:      FamilyDetector,
			Type:        "mitigation_bypass",
			Version:     "1",
			Description: "Detects output that sidesteps a safety mitigation message",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/detect/mitigation_bypass"},
			Parameters: []ParameterSpec{
				{
					Name:        "extended_detectors",
					Kind:        KindBool,
					Description: "Also run the slower extended mitigation checks",
					Default:     false,
				},
			},
		},
		{
			Family:      FamilyDetector,
			Type:        "prompt_injection",
			Version:     "1",
			Description: "Detects successful prompt injection via rogue string echo",
			Execution: ExecutionSpec{
				Transport: TransportCommand,
				Command:   "garak-detect",
				Args:      []string{"promptinject"},
			},
			Parameters: []ParameterSpec{
				{
					Name:        "attack_rogue_string",
					Kind:        KindString,
					Description: "Rogue string the injection tries to make the target emit",
					Required:    true,
					Constraints: Constraints{MinLength: intPtr(1)},
				},
			},
		},
		{
			Family:      FamilyDetector,
			Type:        "package_hallucination",
			Version:     "1",
			Description: "Detects references to packages that do not exist in the ecosystem index",
			Execution:   ExecutionSpec{Transport: TransportHTTP, Path: "/detect/package_hallucination"},
			Parameters: []ParameterSpec{
				{
					Name:        "language",
					Kind:        KindString,
					Description: "Package ecosystem to check against",
					Required:    true,
					Constraints: Constraints{Enum: []string{"python", "javascript", "ruby", "rust"}},
				},
				{
					Name:        "dataset_version",
					Kind:        KindString,
					Description: "Snapshot date of the package index",
					Default:     "20230601",
				},
			},
		},
		{
			Family:      FamilyDetector,
			Type:        "leak_replay",
			Version:     "1",
			Description: "Detects verbatim replay of training document fragments",
			Execution:   ExecutionSpec{Transport: TransportSSE, Path: "/detect/leak_replay/stream"},
			Parameters: []ParameterSpec{
				{
					Name:        "case_sensitive",
					Kind:        KindBool,
					Description: "Match document fragments with case sensitivity",
					Default:     false,
				},
				{
					Name:        "window",
					Kind:        KindInt,
					Description: "Minimum run of leaked tokens counted as a hit",
					Default:     5,
					Constraints: Constraints{Min: floatPtr(1), Max: floatPtr(100)},
				},
			},
		},
		{
			Family:      FamilyDetector,
			Type:        "custom_script",
			Version:     "1",
			Description: "Evaluates output with a user-supplied JavaScript detector",
			Execution:   ExecutionSpec{Transport: TransportScript},
			Parameters: []ParameterSpec{
				{
					Name:        "script",
					Kind:        KindString,
					Description: "JavaScript program returning an array of scores in [0,1]",
					Required:    true,
					Constraints: Constraints{MinLength: intPtr(1)},
				},
				{
					Name:        "timeout_seconds",
					Kind:        KindInt,
					Description: "Evaluation budget for the script",
					Default:     10,
					Constraints: Constraints{Min: floatPtr(1), Max: floatPtr(120)},
				},
			},
		},
	}
}

// NewDefaultRegistry creates a registry seeded with the built-in scorer and
// detector catalogs.
func NewDefaultRegistry() (*StandardRegistry, error) {
	registry := NewRegistry()
	if err := registry.RegisterAll(BuiltinScorers()); err != nil {
		return nil, fmt.Errorf("failed to register builtin scorers: %w", err)
	}
	if err := registry.RegisterAll(BuiltinDetectors()); err != nil {
		return nil, fmt.Errorf("failed to register builtin detectors: %w", err)
	}
	return registry, nil
}

// ParseCatalog decodes a YAML catalog document into descriptors.
func ParseCatalog(data []byte) ([]Descriptor, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return catalog.Types, nil
}

// LoadCatalogFile reads a YAML catalog file and registers its types.
func LoadCatalogFile(registry *StandardRegistry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	descs, err := ParseCatalog(data)
	if err != nil {
		return fmt.Errorf("catalog file %s: %w", path, err)
	}

	if err := registry.RegisterAll(descs); err != nil {
		return fmt.Errorf("catalog file %s: %w", path, err)
	}
	return nil
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
