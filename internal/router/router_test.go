package router

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type fakeChatService struct {
	reply string
	err   error
}

func (f *fakeChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

// TestClassify_KeywordShortCircuit is S1: a query naming .dat/for005/namelist
// routes to datcom_generation without needing the chat call to agree.
func TestClassify_KeywordShortCircuit(t *testing.T) {
	client := chatclient.NewForTesting(&fakeChatService{reply: "general_query"}, "test-model", 0)
	r := New(client)
	state := &workflowstate.WorkflowState{Question: "Generate a .dat file for F-4 with S=530, A=2.8, λ=0.3, sweep=45"}
	intent := r.Classify(context.Background(), state)
	if intent != workflowstate.IntentDatcomGeneration {
		t.Errorf("expected datcom_generation, got %s", intent)
	}
	if len(state.Messages) != 1 || state.Messages[0].Role != workflowstate.RoleUser {
		t.Errorf("expected user message seeded into state, got %+v", state.Messages)
	}
}

// TestClassify_GeneralQuery is S2: a conceptual question routes to
// general_query.
func TestClassify_GeneralQuery(t *testing.T) {
	client := chatclient.NewForTesting(&fakeChatService{reply: "general_query"}, "test-model", 0)
	r := New(client)
	state := &workflowstate.WorkflowState{Question: "What is the FLTCON namelist?"}
	intent := r.Classify(context.Background(), state)
	if intent != workflowstate.IntentGeneralQuery {
		t.Errorf("expected general_query, got %s", intent)
	}
}

func TestClassify_ChatFailureFallsBackToGeneralQuery(t *testing.T) {
	client := chatclient.NewForTesting(&fakeChatService{err: errors.New("network down")}, "test-model", 0)
	r := New(client)
	state := &workflowstate.WorkflowState{Question: "Tell me about airfoils"}
	intent := r.Classify(context.Background(), state)
	if intent != workflowstate.IntentGeneralQuery {
		t.Errorf("expected general_query fallback, got %s", intent)
	}
}

func TestClassify_UnparseableReplyDefaultsToGeneralQuery(t *testing.T) {
	client := chatclient.NewForTesting(&fakeChatService{reply: "I'm not sure"}, "test-model", 0)
	r := New(client)
	state := &workflowstate.WorkflowState{Question: "Describe a wing"}
	intent := r.Classify(context.Background(), state)
	if intent != workflowstate.IntentGeneralQuery {
		t.Errorf("expected general_query default, got %s", intent)
	}
}
