package tools

import (
	"context"
	"strings"
	"testing"
)

func TestCalculatorHandler_BasicArithmetic(t *testing.T) {
	out, err := calculatorHandler(context.Background(), `{"expression": "2 + 3 * 4"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "14" {
		t.Errorf("expected 14, got %s", out)
	}
}

// TestCalculatorHandler_RejectsIllegalCall is S5: input
// "__import__('os').system('ls')" must produce an error observation
// containing "illegal"; no OS call occurs.
func TestCalculatorHandler_RejectsIllegalCall(t *testing.T) {
	_, err := calculatorHandler(context.Background(), `{"expression": "__import__('os').system('ls')"}`)
	if err == nil {
		t.Fatal("expected an error for an illegal expression")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "illegal") {
		t.Errorf("expected error to mention 'illegal', got: %v", err)
	}
}

func TestCalculatorHandler_RejectsOtherBlockedIdentifiers(t *testing.T) {
	for _, expr := range []string{"exec('x')", "eval('1')", "open('/etc/passwd')", "x.__class__"} {
		_, err := calculatorHandler(context.Background(), `{"expression": "`+expr+`"}`)
		if err == nil {
			t.Errorf("expected error for blocked expression %q", expr)
		}
	}
}

func TestCalculatorHandler_RejectsOverlongExpression(t *testing.T) {
	expr := strings.Repeat("1+", 300) + "1"
	_, err := calculatorHandler(context.Background(), `{"expression": "`+expr+`"}`)
	if err == nil {
		t.Fatal("expected error for overlong expression")
	}
}
