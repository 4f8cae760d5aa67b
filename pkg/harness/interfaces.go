// Package harness executes ad-hoc tests against configured plugin instances.
package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// ErrStaleInstance is returned when a test is requested for an instance
// whose stored parameters no longer satisfy the current descriptor.
var ErrStaleInstance = errors.New("plugin instance is stale and must be reconfigured before testing")

// TestInput carries the material a plugin instance is tested against.
type TestInput struct {
	// Payload is the model output under judgment
	Payload string `json:"payload"`

	// Prompt optionally pairs the payload with the prompt that produced it
	Prompt string `json:"prompt,omitempty"`

	// Objective optionally states the attack objective being evaluated
	Objective string `json:"objective,omitempty"`
}

// TestResult is the normalized outcome of one ad-hoc test.
type TestResult struct {
	// Scores holds the numeric scores reported by the plugin
	Scores []float64 `json:"scores"`

	// Label is the category or verdict, when the plugin reports one
	Label string `json:"label,omitempty"`

	// Rationale explains the scores, when the plugin reports one
	Rationale string `json:"rationale,omitempty"`
}

// Harness runs ad-hoc tests against plugin instances. It never mutates an
// instance and persists nothing; concurrent tests are safe.
type Harness interface {
	// RunTest invokes the instance's plugin backend with the given input
	// and returns the normalized result
	RunTest(ctx context.Context, instance plugins.PluginInstance, input TestInput) (TestResult, error)
}

// PluginExecutionError reports a failure inside a plugin backend during a
// test run, carrying the plugin's own error message.
type PluginExecutionError struct {
	// Family of the failing instance
	Family plugins.Family

	// Type of the failing instance
	Type string

	// Err is the underlying execution error
	Err error
}

func (e *PluginExecutionError) Error() string {
	return fmt.Sprintf("%s plugin '%s' failed: %v", e.Family, e.Type, e.Err)
}

// Unwrap returns the underlying execution error
func (e *PluginExecutionError) Unwrap() error {
	return e.Err
}
