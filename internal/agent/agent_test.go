package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/BTreeMap/datcomagent/internal/tools"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// scriptedChatService returns one canned response per call, in order,
// letting a test drive a multi-round tool loop deterministically.
type scriptedChatService struct {
	responses []*openai.ChatCompletion
	calls     int
}

func (s *scriptedChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if s.calls >= len(s.responses) {
		return nil, fmt.Errorf("scriptedChatService: no more scripted responses (call %d)", s.calls)
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func toolCallResponse(id, name, args string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ChatCompletionMessageToolCall{
					{ID: id, Function: openai.ChatCompletionMessageToolCallFunction{Name: name, Arguments: args}},
				},
			},
		}},
	}
}

func finalAnswerResponse(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func TestRun_ToolCallThenFinalAnswer(t *testing.T) {
	registry := tools.New()
	tools.RegisterCalculator(registry)

	svc := &scriptedChatService{responses: []*openai.ChatCompletion{
		toolCallResponse("call_1", "python_calculator", `{"expression":"2+2"}`),
		finalAnswerResponse("The answer is 4 (source: python_calculator)."),
	}}
	client := chatclient.NewForTesting(svc, "test-model", 0)
	a := New(client, registry, 5)

	state := &workflowstate.WorkflowState{Question: "What is 2+2?"}
	state.Messages = append(state.Messages, workflowstate.Message{Role: workflowstate.RoleUser, Content: state.Question})

	if err := a.Run(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Generation == "" {
		t.Fatal("expected non-empty Generation")
	}
	foundTool := false
	for _, m := range state.Messages {
		if m.Role == workflowstate.RoleTool && m.Content == "4" {
			foundTool = true
		}
	}
	if !foundTool {
		t.Errorf("expected a tool observation of '4' in transcript, got: %+v", state.Messages)
	}
}

// TestRun_IterationCapExhaustion is S6: a tool that never lets the model
// converge must still return a non-empty Chinese fallback Generation
// once maxIterations is reached, without looping forever.
func TestRun_IterationCapExhaustion(t *testing.T) {
	registry := tools.New()
	registry.Register(workflowstate.ToolSpec{
		Name:        "retrieve_datcom_archive",
		Description: "always empty",
		Parameters:  map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, rawArgs string) (string, error) {
			return "", nil
		},
	})

	const maxIterations = 3
	responses := make([]*openai.ChatCompletion, 0, maxIterations)
	for i := 0; i < maxIterations; i++ {
		responses = append(responses, toolCallResponse(fmt.Sprintf("call_%d", i), "retrieve_datcom_archive", `{"query":"x"}`))
	}
	svc := &scriptedChatService{responses: responses}
	client := chatclient.NewForTesting(svc, "test-model", 0)
	a := New(client, registry, maxIterations)

	state := &workflowstate.WorkflowState{Question: "Tell me about something nobody has written down"}
	state.Messages = append(state.Messages, workflowstate.Message{Role: workflowstate.RoleUser, Content: state.Question})

	if err := a.Run(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Generation == "" {
		t.Fatal("expected a non-empty fallback Generation on iteration-cap exhaustion")
	}
	if svc.calls != maxIterations {
		t.Errorf("expected exactly %d chat calls, got %d", maxIterations, svc.calls)
	}
}

func TestRun_ChatFailureProducesFallback(t *testing.T) {
	registry := tools.New()
	svc := &scriptedChatService{} // no scripted responses: first call errors
	client := chatclient.NewForTesting(svc, "test-model", 0)
	a := New(client, registry, 5)

	state := &workflowstate.WorkflowState{Question: "anything"}
	state.Messages = append(state.Messages, workflowstate.Message{Role: workflowstate.RoleUser, Content: state.Question})

	if err := a.Run(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Generation == "" {
		t.Fatal("expected a non-empty fallback Generation on chat failure")
	}
}

func TestTrimContext_RetainsSystemFirstUserAndRecentTurns(t *testing.T) {
	var messages []workflowstate.Message
	messages = append(messages, workflowstate.Message{Role: workflowstate.RoleSystem, Content: "sys"})
	messages = append(messages, workflowstate.Message{Role: workflowstate.RoleUser, Content: "first question"})

	// Manufacture 10 synthetic turns, each: assistant tool-call + tool
	// observation, to push well past softMessageLimit.
	for i := 0; i < 10; i++ {
		messages = append(messages, workflowstate.Message{
			Role:    workflowstate.RoleAssistant,
			Content: fmt.Sprintf("turn %d narration", i),
			ToolCalls: []workflowstate.ToolCallRequest{
				{ID: fmt.Sprintf("call_%d", i), ToolName: "retrieve_datcom_archive", Arguments: "{}"},
			},
		})
		messages = append(messages, workflowstate.Message{
			Role: workflowstate.RoleTool, Name: "retrieve_datcom_archive", ToolCallID: fmt.Sprintf("call_%d", i),
			Content: fmt.Sprintf("observation %d", i),
		})
	}
	if len(messages) <= softMessageLimit {
		t.Fatalf("test setup error: need more than %d messages, got %d", softMessageLimit, len(messages))
	}

	trimmed := trimContext(messages)

	if trimmed[0].Role != workflowstate.RoleSystem || trimmed[0].Content != "sys" {
		t.Errorf("expected system message first, got %+v", trimmed[0])
	}
	foundFirstUser := false
	for _, m := range trimmed {
		if m.Role == workflowstate.RoleUser && m.Content == "first question" {
			foundFirstUser = true
		}
	}
	if !foundFirstUser {
		t.Error("expected the initial user message to survive trimming")
	}

	lastToolSeen := false
	for _, m := range trimmed {
		if m.Role == workflowstate.RoleTool && m.Content == "observation 9" {
			lastToolSeen = true
		}
	}
	if !lastToolSeen {
		t.Error("expected the last tool observation for retrieve_datcom_archive to survive trimming")
	}

	earliestSeen := false
	for _, m := range trimmed {
		if m.Content == "observation 0" {
			earliestSeen = true
		}
	}
	if earliestSeen {
		t.Error("expected the earliest turn's tool observation to have been trimmed away (superseded by later same-tool observation)")
	}
}

func TestTrimContext_NoOpBelowLimit(t *testing.T) {
	messages := []workflowstate.Message{
		{Role: workflowstate.RoleSystem, Content: "sys"},
		{Role: workflowstate.RoleUser, Content: "hi"},
	}
	trimmed := trimContext(messages)
	if len(trimmed) != len(messages) {
		t.Errorf("expected no trimming below the soft limit, got %d messages", len(trimmed))
	}
}
