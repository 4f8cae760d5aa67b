// Package scripting provides the sandboxed JavaScript engine behind the
// script transport.
package scripting

import "context"

// ScriptEngine runs a script program against a single input document and
// returns whatever the program produced as a Go value.
type ScriptEngine interface {
	// Run evaluates script with input bound to the 'input' global. The
	// script body may use return statements. Evaluation is interrupted
	// when ctx expires.
	Run(ctx context.Context, script string, input map[string]interface{}) (interface{}, error)
}
