package validation

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// Validation of an already validated map must succeed and change nothing.
func TestValidateIdempotent(t *testing.T) {
	desc := thresholdDescriptor()

	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.Float64Range(0, 1).Draw(t, "threshold")

		first, err := Validate(desc, map[string]interface{}{"threshold": threshold})
		if err != nil {
			t.Fatalf("first pass rejected %v: %v", threshold, err)
		}

		second, err := Validate(desc, first)
		if err != nil {
			t.Fatalf("second pass rejected validated params: %v", err)
		}
		if second["threshold"] != first["threshold"] {
			t.Fatalf("threshold drifted: %v != %v", second["threshold"], first["threshold"])
		}
		if second["detector_model"] != first["detector_model"] {
			t.Fatalf("default drifted: %v != %v", second["detector_model"], first["detector_model"])
		}
	})
}

// A numeric value passes exactly when it is inside the declared bounds.
func TestValidateBoundsExact(t *testing.T) {
	desc := thresholdDescriptor()

	rapid.Check(t, func(t *rapid.T) {
		value := rapid.Float64Range(-100, 100).Draw(t, "value")

		_, err := Validate(desc, map[string]interface{}{"threshold": value})
		inRange := value >= 0 && value <= 1
		if inRange && err != nil {
			t.Fatalf("in-range value %v rejected: %v", value, err)
		}
		if !inRange && err == nil {
			t.Fatalf("out-of-range value %v accepted", value)
		}
	})
}

// Every required parameter left out shows up in the error, nothing else does.
func TestValidateReportsEachMissingRequired(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(1, 8).Draw(t, "count")

		desc := plugins.Descriptor{
			Family:  plugins.FamilyDetector,
			Type:    "trigger_list",
			Version: "1",
		}
		names := make([]string, count)
		for i := 0; i < count; i++ {
			names[i] = rapid.StringMatching(`p[a-z]{2,8}`).Draw(t, "name")
			for j := 0; j < i; j++ {
				if names[j] == names[i] {
					t.Skip("duplicate generated name")
				}
			}
			desc.Parameters = append(desc.Parameters, plugins.ParameterSpec{
				Name: names[i], Kind: plugins.KindString, Required: true,
			})
		}

		supplied := rapid.IntRange(0, count-1).Draw(t, "supplied")
		raw := make(map[string]interface{}, supplied)
		for i := 0; i < supplied; i++ {
			raw[names[i]] = "value"
		}

		_, err := Validate(desc, raw)
		var verr *Error
		if err == nil {
			t.Fatalf("expected %d missing parameters to fail", count-supplied)
		}
		if ok := asValidationError(err, &verr); !ok {
			t.Fatalf("unexpected error type %T", err)
		}
		if len(verr.Fields) != count-supplied {
			t.Fatalf("got %d field errors, want %d", len(verr.Fields), count-supplied)
		}
	})
}

func asValidationError(err error, target **Error) bool {
	verr, ok := err.(*Error)
	if ok {
		*target = verr
	}
	return ok
}
