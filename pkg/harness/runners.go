package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/scripting"
)

// runner invokes a plugin backend over one transport.
type runner interface {
	invoke(ctx context.Context, desc plugins.Descriptor, params map[string]interface{}, payload []byte) ([]byte, error)
}

// backendURL returns the backend base URL for a family.
func backendURL(backends Backends, family plugins.Family) (string, error) {
	switch family {
	case plugins.FamilyScorer:
		if backends.ScorerURL == "" {
			return "", fmt.Errorf("no scorer backend configured")
		}
		return backends.ScorerURL, nil
	case plugins.FamilyDetector:
		if backends.DetectorURL == "" {
			return "", fmt.Errorf("no detector backend configured")
		}
		return backends.DetectorURL, nil
	default:
		return "", fmt.Errorf("no backend for family '%s'", family)
	}
}

// httpRunner posts the test envelope to the family's backend service at the
// descriptor's path.
type httpRunner struct {
	backends Backends
	client   *http.Client
}

func newHTTPRunner(backends Backends, timeout time.Duration) *httpRunner {
	return &httpRunner{
		backends: backends,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *httpRunner) invoke(ctx context.Context, desc plugins.Descriptor, params map[string]interface{}, payload []byte) ([]byte, error) {
	base, err := backendURL(r.backends, desc.Family)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(base, "/") + desc.Execution.Path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http request returned non-200 status: %d, body: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// commandRunner runs the plugin as a subprocess with the envelope on stdin
// and the result on stdout.
type commandRunner struct{}

func (r *commandRunner) invoke(ctx context.Context, desc plugins.Descriptor, params map[string]interface{}, payload []byte) ([]byte, error) {
	if desc.Execution.Command == "" {
		return nil, fmt.Errorf("no command configured for type '%s'", desc.Type)
	}

	cmd := exec.CommandContext(ctx, desc.Execution.Command, desc.Execution.Args...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	if _, err := stdin.Write(payload); err != nil {
		// The process may have exited before the write completed
		cmd.Wait()
		return nil, fmt.Errorf("failed to write to stdin: %w, stderr: %s", err, stderr.String())
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("command failed: %w, stderr: %s", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// scriptRunner evaluates a JavaScript program through the scripting engine.
// The script sees the request envelope as 'input' and returns either a
// score array or a result object.
type scriptRunner struct {
	engine scripting.ScriptEngine
}

func newScriptRunner() *scriptRunner {
	return &scriptRunner{engine: scripting.NewGojaEngine()}
}

func (r *scriptRunner) invoke(ctx context.Context, desc plugins.Descriptor, params map[string]interface{}, payload []byte) ([]byte, error) {
	script, _ := params["script"].(string)
	if script == "" {
		script = desc.Execution.Script
	}
	if script == "" {
		return nil, fmt.Errorf("no script configured for type '%s'", desc.Type)
	}

	var input map[string]interface{}
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, fmt.Errorf("failed to decode script input: %w", err)
	}

	exported, err := r.engine.Run(ctx, script, input)
	if err != nil {
		return nil, err
	}

	return encodeScriptResult(exported)
}

// encodeScriptResult maps a script's return value onto the response
// envelope. Arrays and bare numbers become score lists; objects pass
// through unchanged.
func encodeScriptResult(exported interface{}) ([]byte, error) {
	switch v := exported.(type) {
	case []interface{}:
		return json.Marshal(map[string]interface{}{"scores": v})
	case float64:
		return json.Marshal(map[string]interface{}{"scores": []float64{v}})
	case int64:
		return json.Marshal(map[string]interface{}{"scores": []int64{v}})
	case map[string]interface{}:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("script returned %T, want a score array or result object", exported)
	}
}

// sseRunner starts a streaming scan and collects score events until the
// backend signals completion. The scan is started with a POST carrying the
// envelope; the backend replies with the URL of its event stream. Each
// 'score' event carries one number and the terminal 'result' event carries
// the final response envelope.
type sseRunner struct {
	backends Backends
	client   *http.Client
}

func newSSERunner(backends Backends, timeout time.Duration) *sseRunner {
	return &sseRunner{
		backends: backends,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *sseRunner) invoke(ctx context.Context, desc plugins.Descriptor, params map[string]interface{}, payload []byte) ([]byte, error) {
	base, err := backendURL(r.backends, desc.Family)
	if err != nil {
		return nil, err
	}

	streamURL, err := r.startScan(ctx, strings.TrimRight(base, "/")+desc.Execution.Path, payload)
	if err != nil {
		return nil, err
	}

	client := sse.NewClient(streamURL)

	var (
		mu     sync.Mutex
		scores []float64
		result []byte
	)
	errChan := make(chan error, 1)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		// The library reconnects on its own, so the context bounds it
		err := client.SubscribeRawWithContext(subCtx, func(msg *sse.Event) {
			switch string(msg.Event) {
			case "score":
				var score float64
				if err := json.Unmarshal(msg.Data, &score); err == nil {
					mu.Lock()
					scores = append(scores, score)
					mu.Unlock()
				}
			case "result":
				mu.Lock()
				result = append([]byte(nil), msg.Data...)
				mu.Unlock()
				cancel()
			}
		})
		if err != nil && subCtx.Err() == nil {
			errChan <- err
		}
	}()

	select {
	case <-subCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Canceled because the result event arrived
		mu.Lock()
		raw := result
		collected := scores
		mu.Unlock()
		if raw == nil {
			return nil, fmt.Errorf("stream closed without a result event")
		}
		return mergeStreamResult(raw, collected)
	case err := <-errChan:
		return nil, fmt.Errorf("sse subscription failed: %w", err)
	}
}

// startScan posts the envelope and returns the event stream URL.
func (r *sseRunner) startScan(ctx context.Context, url string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to start scan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("scan request returned non-200 status: %d, body: %s", resp.StatusCode, string(body))
	}

	var started struct {
		Stream string `json:"stream"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return "", fmt.Errorf("failed to decode scan response: %w", err)
	}
	if started.Stream == "" {
		return "", fmt.Errorf("scan response missing stream url")
	}

	return started.Stream, nil
}

// mergeStreamResult folds incrementally streamed scores into the terminal
// result when the result itself carries none.
func mergeStreamResult(raw []byte, scores []float64) ([]byte, error) {
	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode stream result: %w", err)
	}
	if _, ok := envelope["scores"]; !ok && len(scores) > 0 {
		envelope["scores"] = scores
		return json.Marshal(envelope)
	}
	return raw, nil
}
