package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

func thresholdDescriptor() plugins.Descriptor {
	min, max := 0.0, 1.0
	return plugins.Descriptor{
		Family:  plugins.FamilyDetector,
		Type:    "toxicity",
		Version: "1",
		Parameters: []plugins.ParameterSpec{
			{
				Name:        "threshold",
				Kind:        plugins.KindFloat,
				Required:    true,
				Constraints: plugins.Constraints{Min: &min, Max: &max},
			},
			{
				Name:    "detector_model",
				Kind:    plugins.KindString,
				Default: "unitary/toxic-bert",
			},
		},
	}
}

func fieldMessages(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *Error
	require.ErrorAs(t, err, &verr)

	messages := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		messages[f.Field] = f.Message
	}
	return messages
}

func TestValidate(t *testing.T) {
	t.Run("ValidParams", func(t *testing.T) {
		params, err := Validate(thresholdDescriptor(), map[string]interface{}{
			"threshold": 0.5,
		})
		require.NoError(t, err)
		assert.Equal(t, 0.5, params["threshold"])
		// Absent optional picks up its default
		assert.Equal(t, "unitary/toxic-bert", params["detector_model"])
	})

	t.Run("MissingRequired", func(t *testing.T) {
		_, err := Validate(thresholdDescriptor(), map[string]interface{}{})
		messages := fieldMessages(t, err)
		assert.Equal(t, "is required", messages["threshold"])
	})

	t.Run("NilCountsAsAbsent", func(t *testing.T) {
		_, err := Validate(thresholdDescriptor(), map[string]interface{}{
			"threshold": nil,
		})
		messages := fieldMessages(t, err)
		assert.Contains(t, messages, "threshold")
	})

	t.Run("OutOfRange", func(t *testing.T) {
		_, err := Validate(thresholdDescriptor(), map[string]interface{}{
			"threshold": 1.5,
		})
		messages := fieldMessages(t, err)
		assert.Equal(t, "must be at most 1", messages["threshold"])
	})

	t.Run("UnknownParameter", func(t *testing.T) {
		_, err := Validate(thresholdDescriptor(), map[string]interface{}{
			"threshold": 0.5,
			"verbose":   true,
		})
		messages := fieldMessages(t, err)
		assert.Equal(t, "unknown parameter", messages["verbose"])
	})

	t.Run("CollectsAllErrors", func(t *testing.T) {
		desc := plugins.Descriptor{
			Family:  plugins.FamilyScorer,
			Type:    "substring",
			Version: "1",
			Parameters: []plugins.ParameterSpec{
				{Name: "substring", Kind: plugins.KindString, Required: true},
				{Name: "count", Kind: plugins.KindInt, Required: true},
			},
		}

		_, err := Validate(desc, map[string]interface{}{
			"count":   "three",
			"verbose": true,
		})
		messages := fieldMessages(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "is required", messages["substring"])
		assert.Equal(t, "must be an integer", messages["count"])
		assert.Equal(t, "unknown parameter", messages["verbose"])
	})

	t.Run("InputMapUntouched", func(t *testing.T) {
		raw := map[string]interface{}{"threshold": 0.5}
		_, err := Validate(thresholdDescriptor(), raw)
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"threshold": 0.5}, raw)
	})
}

func TestValidateCoercion(t *testing.T) {
	intSpec := plugins.Descriptor{
		Family: plugins.FamilyDetector, Type: "leak_replay", Version: "1",
		Parameters: []plugins.ParameterSpec{
			{Name: "window", Kind: plugins.KindInt, Required: true},
		},
	}

	t.Run("JSONNumberToInt", func(t *testing.T) {
		// encoding/json decodes every number as float64
		params, err := Validate(intSpec, map[string]interface{}{"window": float64(5)})
		require.NoError(t, err)
		assert.Equal(t, 5, params["window"])
	})

	t.Run("FractionalRejectedForInt", func(t *testing.T) {
		_, err := Validate(intSpec, map[string]interface{}{"window": 5.5})
		messages := fieldMessages(t, err)
		assert.Equal(t, "must be an integer", messages["window"])
	})

	t.Run("NumericStringAccepted", func(t *testing.T) {
		params, err := Validate(intSpec, map[string]interface{}{"window": "7"})
		require.NoError(t, err)
		assert.Equal(t, 7, params["window"])

		params, err = Validate(thresholdDescriptor(), map[string]interface{}{"threshold": "0.25"})
		require.NoError(t, err)
		assert.Equal(t, 0.25, params["threshold"])
	})

	t.Run("IntWidensToFloat", func(t *testing.T) {
		params, err := Validate(thresholdDescriptor(), map[string]interface{}{"threshold": 1})
		require.NoError(t, err)
		assert.Equal(t, 1.0, params["threshold"])
	})

	t.Run("BoolStaysStrict", func(t *testing.T) {
		desc := plugins.Descriptor{
			Family: plugins.FamilyScorer, Type: "refusal", Version: "1",
			Parameters: []plugins.ParameterSpec{
				{Name: "include_objective", Kind: plugins.KindBool, Required: true},
			},
		}

		_, err := Validate(desc, map[string]interface{}{"include_objective": "true"})
		messages := fieldMessages(t, err)
		assert.Contains(t, messages["include_objective"], "must be a boolean")

		params, err := Validate(desc, map[string]interface{}{"include_objective": true})
		require.NoError(t, err)
		assert.Equal(t, true, params["include_objective"])
	})

	t.Run("StringListWidens", func(t *testing.T) {
		desc := plugins.Descriptor{
			Family: plugins.FamilyDetector, Type: "trigger_list", Version: "1",
			Parameters: []plugins.ParameterSpec{
				{Name: "triggers", Kind: plugins.KindList, Required: true},
			},
		}

		params, err := Validate(desc, map[string]interface{}{"triggers": []string{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"a", "b"}, params["triggers"])
	})

	t.Run("SecretWantsString", func(t *testing.T) {
		desc := plugins.Descriptor{
			Family: plugins.FamilyScorer, Type: "azure_content_filter", Version: "1",
			Parameters: []plugins.ParameterSpec{
				{Name: "api_key", Kind: plugins.KindSecret, Required: true},
			},
		}

		_, err := Validate(desc, map[string]interface{}{"api_key": 42})
		messages := fieldMessages(t, err)
		assert.Contains(t, messages["api_key"], "must be a string")
	})
}

func TestValidateConstraints(t *testing.T) {
	t.Run("Enum", func(t *testing.T) {
		desc := plugins.Descriptor{
			Family: plugins.FamilyDetector, Type: "package_hallucination", Version: "1",
			Parameters: []plugins.ParameterSpec{
				{
					Name: "language", Kind: plugins.KindString, Required: true,
					Constraints: plugins.Constraints{Enum: []string{"python", "javascript"}},
				},
			},
		}

		_, err := Validate(desc, map[string]interface{}{"language": "cobol"})
		messages := fieldMessages(t, err)
		assert.Equal(t, "must be one of: python, javascript", messages["language"])

		_, err = Validate(desc, map[string]interface{}{"language": "python"})
		assert.NoError(t, err)
	})

	t.Run("Pattern", func(t *testing.T) {
		desc := plugins.Descriptor{
			Family: plugins.FamilyScorer, Type: "azure_content_filter", Version: "1",
			Parameters: []plugins.ParameterSpec{
				{
					Name: "endpoint", Kind: plugins.KindString, Required: true,
					Constraints: plugins.Constraints{Pattern: `^https?://`},
				},
			},
		}

		_, err := Validate(desc, map[string]interface{}{"endpoint": "ftp://host"})
		messages := fieldMessages(t, err)
		assert.Contains(t, messages["endpoint"], "must match pattern")

		_, err = Validate(desc, map[string]interface{}{"endpoint": "https://host"})
		assert.NoError(t, err)
	})

	t.Run("StringLength", func(t *testing.T) {
		minLen := 1
		desc := plugins.Descriptor{
			Family: plugins.FamilyScorer, Type: "substring", Version: "1",
			Parameters: []plugins.ParameterSpec{
				{
					Name: "substring", Kind: plugins.KindString, Required: true,
					Constraints: plugins.Constraints{MinLength: &minLen},
				},
			},
		}

		_, err := Validate(desc, map[string]interface{}{"substring": ""})
		messages := fieldMessages(t, err)
		assert.Equal(t, "must have length at least 1", messages["substring"])
	})

	t.Run("ListLength", func(t *testing.T) {
		minLen := 1
		desc := plugins.Descriptor{
			Family: plugins.FamilyDetector, Type: "trigger_list", Version: "1",
			Parameters: []plugins.ParameterSpec{
				{
					Name: "triggers", Kind: plugins.KindList, Required: true,
					Constraints: plugins.Constraints{MinLength: &minLen},
				},
			},
		}

		_, err := Validate(desc, map[string]interface{}{"triggers": []interface{}{}})
		messages := fieldMessages(t, err)
		assert.Equal(t, "must have length at least 1", messages["triggers"])
	})
}

func TestValidateBuiltinToxicity(t *testing.T) {
	registry, err := plugins.NewDefaultRegistry()
	require.NoError(t, err)

	desc, err := registry.GetDescriptor(plugins.FamilyDetector, "toxicity")
	require.NoError(t, err)

	params, err := Validate(desc, map[string]interface{}{"threshold": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, params["threshold"])

	_, err = Validate(desc, map[string]interface{}{"threshold": 1.5})
	messages := fieldMessages(t, err)
	assert.Contains(t, messages, "threshold")
}
