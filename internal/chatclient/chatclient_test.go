package chatclient

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type fakeChatService struct {
	resp *openai.ChatCompletion
	err  error
}

func (f *fakeChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return f.resp, f.err
}

func TestComplete_ReturnsContent(t *testing.T) {
	fake := &fakeChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "hello"}}},
	}}
	client := NewForTesting(fake, "test-model", 0)
	out, err := client.Complete(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected 'hello', got %q", out)
	}
}

func TestComplete_NoChoicesIsError(t *testing.T) {
	fake := &fakeChatService{resp: &openai.ChatCompletion{Choices: nil}}
	client := NewForTesting(fake, "test-model", 0)
	_, err := client.Complete(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err == nil {
		t.Fatal("expected error when no choices are returned")
	}
}

func TestComplete_ServiceErrorPropagates(t *testing.T) {
	fake := &fakeChatService{err: errors.New("boom")}
	client := NewForTesting(fake, "test-model", 0)
	_, err := client.Complete(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestCompleteWithTools_ExtractsToolCalls(t *testing.T) {
	fake := &fakeChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Content: "",
				ToolCalls: []openai.ChatCompletionMessageToolCall{
					{ID: "call_1", Function: openai.ChatCompletionMessageToolCallFunction{Name: "python_calculator", Arguments: `{"expression":"1+1"}`}},
				},
			},
		}},
	}}
	client := NewForTesting(fake, "test-model", 0)
	resp, err := client.CompleteWithTools(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("compute 1+1")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ToolName != "python_calculator" {
		t.Errorf("expected python_calculator, got %s", resp.ToolCalls[0].ToolName)
	}
	if resp.ToolCalls[0].Arguments != `{"expression":"1+1"}` {
		t.Errorf("unexpected arguments: %s", resp.ToolCalls[0].Arguments)
	}
}
