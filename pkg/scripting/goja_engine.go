package scripting

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// GojaEngine evaluates scripts on the goja VM. Every run gets a fresh VM so
// state cannot leak between evaluations.
type GojaEngine struct{}

// NewGojaEngine creates a new GojaEngine.
func NewGojaEngine() *GojaEngine {
	return &GojaEngine{}
}

// Run evaluates a script with the input document bound to the 'input'
// global. The script is wrapped in a function so it can use return
// statements.
func (e *GojaEngine) Run(ctx context.Context, script string, input map[string]interface{}) (out interface{}, err error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("script is empty")
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("script panicked: %v", rec)
		}
	}()

	vm := goja.New()

	// Scripts may call console.log; the output is discarded
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
	_ = vm.Set("input", input)

	// Interrupt the VM if the context expires mid-evaluation
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("execution timed out")
		case <-done:
		}
	}()

	wrapped := "(function() {\n" + script + "\n})()"

	value, err := vm.RunString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}

	return value.Export(), nil
}
