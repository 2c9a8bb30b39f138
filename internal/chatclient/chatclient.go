// Package chatclient provides the Chat Client (C2): a thin wrapper
// over openai-go's chat completions service, supporting both plain
// completion (used by the router and the DATCOM extractor) and
// tool-augmented completion (used by the reasoning agent). Grounded on
// the teacher's internal/genai.Client construction pattern and its
// GenerateWithTools call shape referenced throughout internal/flow.
package chatclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/datcomagent/internal/retry"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultRetryAttempts = 3

// chatService is the minimal surface this package depends on, mirroring
// the teacher's chatService interface so tests can substitute a fake
// without spinning up an HTTP server.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client generates chat completions, with or without tool schemas.
type Client struct {
	chat        chatService
	model       string
	temperature float64
}

// New creates a chat client pointed at apiBase with apiKey.
func New(apiBase, apiKey, model string, temperature float64) *Client {
	cli := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(apiBase))
	return &Client{chat: &cli.Chat.Completions, model: model, temperature: temperature}
}

// NewForTesting constructs a Client around a caller-supplied chat
// completions implementation, letting other packages' tests substitute
// a fake without making network calls. The argument need only satisfy
// chatService's method set structurally; it does not need to name the
// (unexported) interface type.
func NewForTesting(service chatService, model string, temperature float64) *Client {
	return &Client{chat: service, model: model, temperature: temperature}
}

// ToolCallResponse is the result of one completion round: either a
// final content string, a set of tool calls to execute, or both (a
// model may emit narration alongside a tool call).
type ToolCallResponse struct {
	Content   string
	ToolCalls []workflowstate.ToolCallRequest
}

// Complete runs a plain (no tools) completion and returns its content.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	var resp *openai.ChatCompletion
	err := retry.Do(ctx, "chatclient.Complete", defaultRetryAttempts, func() error {
		r, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
			Model:       c.model,
			Messages:    messages,
			Temperature: openai.Float(c.temperature),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", workflowstate.ChatError("chatclient.Complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", workflowstate.ChatError("chatclient.Complete", fmt.Errorf("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteWithTools runs a completion with tool_choice=auto over the
// given tool schemas and reports both any narration content and any
// tool calls the model requested.
func (c *Client) CompleteWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	var resp *openai.ChatCompletion
	err := retry.Do(ctx, "chatclient.CompleteWithTools", defaultRetryAttempts, func() error {
		r, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
			Model:       c.model,
			Messages:    messages,
			Tools:       tools,
			ToolChoice:  openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")},
			Temperature: openai.Float(c.temperature),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, workflowstate.ChatError("chatclient.CompleteWithTools", err)
	}
	if len(resp.Choices) == 0 {
		return nil, workflowstate.ChatError("chatclient.CompleteWithTools", fmt.Errorf("no choices returned"))
	}

	msg := resp.Choices[0].Message
	out := &ToolCallResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, workflowstate.ToolCallRequest{
			ID:        tc.ID,
			ToolName:  tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	slog.Debug("chatclient.CompleteWithTools: completion received", "hasContent", out.Content != "", "toolCallCount", len(out.ToolCalls))
	return out, nil
}
