package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// DefaultTimeout bounds a single plugin invocation unless overridden.
const DefaultTimeout = 30 * time.Second

// Backends holds the base URLs of the scorer and detector backend services.
type Backends struct {
	// ScorerURL is the base URL of the scoring service
	ScorerURL string

	// DetectorURL is the base URL of the detection service
	DetectorURL string
}

// testRequest is the JSON envelope sent to a plugin backend.
type testRequest struct {
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters"`
	Exchange   *exchange              `json:"exchange,omitempty"`
	Attempt    *attempt               `json:"attempt,omitempty"`
}

// exchange is the conversation context a scorer judges. Scorers need the
// prompt/response pairing, so the harness synthesizes one from the test
// input even when only a payload was supplied.
type exchange struct {
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Objective string `json:"objective,omitempty"`
}

// attempt is the single-output context a detector scans.
type attempt struct {
	Output string `json:"output"`
}

// testResponse is the JSON envelope a plugin backend replies with. Backends
// report either a score list or a single score.
type testResponse struct {
	Scores    []float64 `json:"scores"`
	Score     *float64  `json:"score"`
	Label     string    `json:"label"`
	Rationale string    `json:"rationale"`
}

// HarnessService is the default implementation of Harness. It dispatches
// each test to the runner matching the descriptor's transport.
type HarnessService struct {
	types   plugins.Registry
	vault   auth.SecretVault
	runners map[plugins.Transport]runner
	timeout time.Duration
}

// NewHarness creates a test harness over the given plugin type registry.
// The vault may be nil when no secret parameters are in play. A timeout of
// zero or below falls back to DefaultTimeout.
func NewHarness(types plugins.Registry, vault auth.SecretVault, backends Backends, timeout time.Duration) Harness {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HarnessService{
		types: types,
		vault: vault,
		runners: map[plugins.Transport]runner{
			plugins.TransportHTTP:    newHTTPRunner(backends, timeout),
			plugins.TransportCommand: &commandRunner{},
			plugins.TransportScript:  newScriptRunner(),
			plugins.TransportSSE:     newSSERunner(backends, timeout),
		},
		timeout: timeout,
	}
}

// RunTest invokes the instance's plugin backend with the given input and
// returns the normalized result.
func (h *HarnessService) RunTest(ctx context.Context, instance plugins.PluginInstance, input TestInput) (TestResult, error) {
	if instance.Stale {
		return TestResult{}, ErrStaleInstance
	}

	desc, err := h.types.GetDescriptor(instance.Family, instance.Type)
	if err != nil {
		return TestResult{}, err
	}

	params, err := h.resolveSecrets(desc, instance)
	if err != nil {
		return TestResult{}, &PluginExecutionError{Family: instance.Family, Type: instance.Type, Err: err}
	}

	run, ok := h.runners[desc.Execution.Transport]
	if !ok {
		err := fmt.Errorf("no runner for transport '%s'", desc.Execution.Transport)
		return TestResult{}, &PluginExecutionError{Family: instance.Family, Type: instance.Type, Err: err}
	}

	request := testRequest{
		Type:       instance.Type,
		Parameters: params,
	}
	if instance.Family == plugins.FamilyScorer {
		request.Exchange = &exchange{
			Prompt:    input.Prompt,
			Response:  input.Payload,
			Objective: input.Objective,
		}
	} else {
		request.Attempt = &attempt{Output: input.Payload}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return TestResult{}, &PluginExecutionError{Family: instance.Family, Type: instance.Type, Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	raw, err := run.invoke(runCtx, desc, params, payload)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("plugin invocation timed out after %v", h.timeout)
		}
		return TestResult{}, &PluginExecutionError{Family: instance.Family, Type: instance.Type, Err: err}
	}

	result, err := normalizeResult(raw)
	if err != nil {
		return TestResult{}, &PluginExecutionError{Family: instance.Family, Type: instance.Type, Err: err}
	}

	return result, nil
}

// resolveSecrets returns the instance parameters with secret-kind values
// swapped for the credentials they reference. The stored instance is never
// mutated and resolved values are never written back or logged.
func (h *HarnessService) resolveSecrets(desc plugins.Descriptor, instance plugins.PluginInstance) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(instance.Parameters))
	for k, v := range instance.Parameters {
		params[k] = v
	}

	for _, spec := range desc.Parameters {
		if spec.Kind != plugins.KindSecret {
			continue
		}
		key, ok := params[spec.Name].(string)
		if !ok || key == "" {
			continue
		}
		if h.vault == nil {
			return nil, fmt.Errorf("parameter '%s' references secret '%s' but no vault is configured", spec.Name, key)
		}
		value, err := h.vault.Get(instance.OwnerID, key)
		if err != nil {
			return nil, fmt.Errorf("resolve secret '%s' for parameter '%s': %w", key, spec.Name, err)
		}
		params[spec.Name] = value
	}

	return params, nil
}

// normalizeResult decodes a plugin reply, folding the single-score shape
// onto the score list.
func normalizeResult(raw []byte) (TestResult, error) {
	var resp testResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return TestResult{}, fmt.Errorf("failed to decode plugin response: %w", err)
	}

	scores := resp.Scores
	if len(scores) == 0 && resp.Score != nil {
		scores = []float64{*resp.Score}
	}
	if len(scores) == 0 {
		return TestResult{}, fmt.Errorf("plugin response carried no scores")
	}

	return TestResult{
		Scores:    scores,
		Label:     resp.Label,
		Rationale: resp.Rationale,
	}, nil
}
