package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/Knetic/govaluate"
)

const (
	maxExpressionLength = 500
	calculatorTimeout   = 5 * time.Second
)

// blockedIdentifiers mirrors original_source's calculator.py restricted
// namespace: these substrings can never appear in a valid arithmetic
// expression, so their presence is rejected outright before the
// expression ever reaches the evaluator.
var blockedIdentifiers = []string{"import", "exec", "eval", "open", "__", "file"}

// RegisterCalculator wires python_calculator into reg. govaluate parses a
// closed arithmetic/boolean grammar only; it has no code-execution path,
// so the blocklist below is defense-in-depth rather than the sole guard.
func RegisterCalculator(reg *Registry) {
	reg.Register(workflowstate.ToolSpec{
		Name:        "python_calculator",
		Description: "Evaluate an arithmetic or symbolic numeric expression. Use this for any arithmetic instead of computing by hand.",
		Parameters: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{"expression": map[string]interface{}{"type": "string"}},
			"required":             []string{"expression"},
			"additionalProperties": false,
		},
		Handler: calculatorHandler,
	})
}

func calculatorHandler(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	expr := strings.TrimSpace(args.Expression)
	if expr == "" {
		return "", fmt.Errorf("expression is required")
	}
	if len(expr) > maxExpressionLength {
		return "", fmt.Errorf("expression exceeds %d characters", maxExpressionLength)
	}

	lower := strings.ToLower(expr)
	for _, blocked := range blockedIdentifiers {
		if strings.Contains(lower, blocked) {
			return "", fmt.Errorf("illegal identifier in expression: %q", blocked)
		}
	}

	type result struct {
		val interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		eval, err := govaluate.NewEvaluableExpression(expr)
		if err != nil {
			done <- result{err: fmt.Errorf("illegal expression: %w", err)}
			return
		}
		val, err := eval.Evaluate(nil)
		if err != nil {
			done <- result{err: fmt.Errorf("illegal expression: %w", err)}
			return
		}
		done <- result{val: val}
	}()

	select {
	case <-time.After(calculatorTimeout):
		return "", fmt.Errorf("illegal expression: evaluation exceeded time limit")
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		return fmt.Sprintf("%v", r.val), nil
	}
}
