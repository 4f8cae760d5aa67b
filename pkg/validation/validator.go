// Package validation checks raw parameter values against plugin descriptors.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// FieldError describes one rejected parameter.
type FieldError struct {
	// Field is the parameter name
	Field string `json:"field"`

	// Message says what was wrong with the value
	Message string `json:"message"`
}

// Error carries every field error found in one validation pass. Validation
// never stops at the first problem; the caller gets the full list.
type Error struct {
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}

// Validate checks raw parameter values against a descriptor and returns the
// validated map: defaults filled in for absent optionals, numeric values
// coerced to their declared kind. The input map is never modified. On
// failure the returned error is an *Error listing every offending field.
func Validate(desc plugins.Descriptor, raw map[string]interface{}) (map[string]interface{}, error) {
	var fieldErrors []FieldError
	validated := make(map[string]interface{}, len(desc.Parameters))

	// Reject keys the descriptor does not declare
	for key := range raw {
		if _, ok := desc.Param(key); !ok {
			fieldErrors = append(fieldErrors, FieldError{Field: key, Message: "unknown parameter"})
		}
	}

	for _, spec := range desc.Parameters {
		value, present := raw[spec.Name]

		if !present || value == nil {
			if spec.Required {
				fieldErrors = append(fieldErrors, FieldError{Field: spec.Name, Message: "is required"})
				continue
			}
			if spec.Default != nil {
				validated[spec.Name] = copyValue(spec.Default)
			}
			continue
		}

		coerced, msg := coerce(spec.Kind, value)
		if msg != "" {
			fieldErrors = append(fieldErrors, FieldError{Field: spec.Name, Message: msg})
			continue
		}

		for _, msg := range checkConstraints(spec, coerced) {
			fieldErrors = append(fieldErrors, FieldError{Field: spec.Name, Message: msg})
		}
		validated[spec.Name] = coerced
	}

	if len(fieldErrors) > 0 {
		return nil, &Error{Fields: fieldErrors}
	}
	return validated, nil
}

// coerce converts a raw value to its declared kind. JSON decoding hands us
// float64 for every number and forms post numbers as strings, so numeric
// kinds accept both; everything else is strict. Returns an empty message on
// success.
func coerce(kind plugins.ParameterKind, value interface{}) (interface{}, string) {
	switch kind {
	case plugins.KindString, plugins.KindSecret:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("must be a string, got %T", value)
		}
		return s, ""

	case plugins.KindInt:
		switch v := value.(type) {
		case int:
			return v, ""
		case int64:
			return int(v), ""
		case float64:
			if v != float64(int(v)) {
				return nil, "must be an integer"
			}
			return int(v), ""
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, "must be an integer"
			}
			return n, ""
		default:
			return nil, fmt.Sprintf("must be an integer, got %T", value)
		}

	case plugins.KindFloat:
		switch v := value.(type) {
		case float64:
			return v, ""
		case int:
			return float64(v), ""
		case int64:
			return float64(v), ""
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, "must be a number"
			}
			return f, ""
		default:
			return nil, fmt.Sprintf("must be a number, got %T", value)
		}

	case plugins.KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Sprintf("must be a boolean, got %T", value)
		}
		return b, ""

	case plugins.KindList:
		switch v := value.(type) {
		case []interface{}:
			return append([]interface{}(nil), v...), ""
		case []string:
			list := make([]interface{}, len(v))
			for i, s := range v {
				list[i] = s
			}
			return list, ""
		default:
			return nil, fmt.Sprintf("must be a list, got %T", value)
		}

	case plugins.KindMap:
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Sprintf("must be an object, got %T", value)
		}
		copied := make(map[string]interface{}, len(m))
		for k, v := range m {
			copied[k] = v
		}
		return copied, ""

	default:
		return nil, fmt.Sprintf("unsupported parameter kind '%s'", kind)
	}
}

// checkConstraints applies the declared constraints to an already coerced
// value and returns a message per violation.
func checkConstraints(spec plugins.ParameterSpec, value interface{}) []string {
	c := spec.Constraints
	if c.Empty() {
		return nil
	}

	var messages []string

	if num, ok := asFloat(value); ok {
		if c.Min != nil && num < *c.Min {
			messages = append(messages, fmt.Sprintf("must be at least %v", *c.Min))
		}
		if c.Max != nil && num > *c.Max {
			messages = append(messages, fmt.Sprintf("must be at most %v", *c.Max))
		}
	}

	if length, ok := lengthOf(value); ok {
		if c.MinLength != nil && length < *c.MinLength {
			messages = append(messages, fmt.Sprintf("must have length at least %d", *c.MinLength))
		}
		if c.MaxLength != nil && length > *c.MaxLength {
			messages = append(messages, fmt.Sprintf("must have length at most %d", *c.MaxLength))
		}
	}

	if s, ok := value.(string); ok {
		if len(c.Enum) > 0 && !containsString(c.Enum, s) {
			messages = append(messages, fmt.Sprintf("must be one of: %s", strings.Join(c.Enum, ", ")))
		}
		if c.Pattern != "" {
			re, err := regexp.Compile(c.Pattern)
			if err != nil {
				messages = append(messages, fmt.Sprintf("has unusable pattern constraint '%s'", c.Pattern))
			} else if !re.MatchString(s) {
				messages = append(messages, fmt.Sprintf("must match pattern '%s'", c.Pattern))
			}
		}
	}

	return messages
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func lengthOf(value interface{}) (int, bool) {
	switch v := value.(type) {
	case string:
		return len(v), true
	case []interface{}:
		return len(v), true
	}
	return 0, false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// copyValue makes defaults safe to hand out; list and map defaults must not
// alias catalog data.
func copyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []interface{}:
		return append([]interface{}(nil), v...)
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(v))
		for k, item := range v {
			copied[k] = item
		}
		return copied
	default:
		return v
	}
}
