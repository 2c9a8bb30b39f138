package datcom

import (
	"context"
	"testing"

	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type fakeChatService struct {
	replies []string
	calls   int
	err     error
}

func (f *fakeChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[f.calls]
	if f.calls < len(f.replies)-1 {
		f.calls++
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: reply}}},
	}, nil
}

func TestExtract_StripsMarkdownFence(t *testing.T) {
	svc := &fakeChatService{replies: []string{"```json\n{\"aircraft_name\":\"S1\",\"wing\":{\"S\":530,\"A\":2.8,\"lambda\":0.3,\"sweep\":45}}\n```"}}
	client := chatclient.NewForTesting(svc, "test-model", 0)
	parsed, err := extract(context.Background(), client, "describe an aircraft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.AircraftName != "S1" {
		t.Errorf("expected aircraft_name S1, got %q", parsed.AircraftName)
	}
	if parsed.Wing == nil || parsed.Wing.S == nil || *parsed.Wing.S != 530 {
		t.Errorf("expected wing.S=530, got %+v", parsed.Wing)
	}
}

func TestExtract_RetriesOnceOnParseFailure(t *testing.T) {
	svc := &fakeChatService{replies: []string{
		"not json at all",
		`{"aircraft_name":"recovered","wing":{"S":100,"A":8,"lambda":0.5}}`,
	}}
	client := chatclient.NewForTesting(svc, "test-model", 0)
	parsed, err := extract(context.Background(), client, "describe an aircraft")
	if err != nil {
		t.Fatalf("expected retry to succeed, got error: %v", err)
	}
	if parsed.AircraftName != "recovered" {
		t.Errorf("expected recovered parse on second attempt, got %+v", parsed)
	}
}

func TestExtract_FailsAfterSecondParseFailure(t *testing.T) {
	svc := &fakeChatService{replies: []string{"nope", "still not json"}}
	client := chatclient.NewForTesting(svc, "test-model", 0)
	_, err := extract(context.Background(), client, "describe an aircraft")
	if err == nil {
		t.Fatal("expected an error after both attempts fail to parse")
	}
}

func TestToFlightConditions_ComputesAlphaRange(t *testing.T) {
	alpha0, alpha1, dalpha := -2.0, 10.0, 2.0
	f := &extractedFlight{
		MachNumbers: []float64{0.8},
		Altitudes:   []float64{10000},
		Alpha0:      &alpha0,
		Alpha1:      &alpha1,
		DAlpha:      &dalpha,
	}
	fc := toFlightConditions(f)
	if len(fc.AlphaDegrees) != 7 {
		t.Errorf("expected 7 alphas per S1 scenario, got %d", len(fc.AlphaDegrees))
	}
}
