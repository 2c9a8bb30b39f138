// Package agent implements the Reasoning Agent (C7): a bounded
// reason-act-observe loop over the Tool Registry. Grounded on the
// teacher's internal/flow/coordinator_module.go (handleCoordinatorToolLoop,
// executeCoordinatorToolCallsAndUpdateContext), generalized from a
// switch-statement tool dispatch to registry-map dispatch per the Tool
// Registry's frozen-after-startup contract.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/BTreeMap/datcomagent/internal/tools"
	"github.com/BTreeMap/datcomagent/internal/util"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/openai/openai-go"
)

// DefaultMaxIterations matches the teacher's maxToolRounds constant.
const DefaultMaxIterations = 10

// softMessageLimit and turnsToKeep implement spec §4.7's context
// trimming rule.
const (
	softMessageLimit = 40
	turnsToKeep      = 4
)

const systemPromptTemplate = `You are a DATCOM and UAV aerodynamic design assistant. You have access to the following tools: %s.

Rules:
- Every factual claim must be cited using (source: file, locator).
- Use article_lookup when the query contains an explicit article reference.
- Use design_area_router before retrieve_datcom_archive when no collection has been selected yet.
- Use python_calculator for any arithmetic; never compute by hand.
- If you cannot ground an answer in retrieved evidence, say so explicitly rather than guessing.`

// Agent runs the bounded tool-calling loop described in spec §4.7.
type Agent struct {
	chat          *chatclient.Client
	registry      *tools.Registry
	maxIterations int
}

// New constructs a Reasoning Agent. maxIterations <= 0 uses
// DefaultMaxIterations.
func New(chat *chatclient.Client, registry *tools.Registry, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Agent{chat: chat, registry: registry, maxIterations: maxIterations}
}

// Run executes the reason-act-observe loop against state, appending
// messages and setting state.Generation exactly once before returning.
func (a *Agent) Run(ctx context.Context, state *workflowstate.WorkflowState) error {
	if len(state.Messages) == 0 || state.Messages[0].Role != workflowstate.RoleSystem {
		systemPrompt := fmt.Sprintf(systemPromptTemplate, strings.Join(a.registry.Names(), ", "))
		state.Messages = append([]workflowstate.Message{{Role: workflowstate.RoleSystem, Content: systemPrompt}}, state.Messages...)
	}

	schemas := a.registry.Schemas()

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		state.Messages = trimContext(state.Messages)

		resp, err := a.chat.CompleteWithTools(ctx, toOpenAIMessages(state.Messages), schemas)
		if err != nil {
			slog.Warn("agent.Run: chat completion failed", "iteration", iteration, "error", err)
			state.Generation = "無法取得回應，請稍後再試。 (the chat service is currently unavailable)"
			return nil
		}

		if len(resp.ToolCalls) == 0 {
			state.Messages = append(state.Messages, workflowstate.Message{Role: workflowstate.RoleAssistant, Content: resp.Content})
			state.Generation = resp.Content
			a.checkGrounding(state)
			return nil
		}

		state.Messages = append(state.Messages, workflowstate.Message{
			Role:      workflowstate.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			observation, err := a.registry.Invoke(ctx, call.ToolName, call.Arguments)
			if err != nil {
				slog.Debug("agent.Run: tool call failed", "tool", call.ToolName, "error", err)
				observation = fmt.Sprintf("error: %v", err)
			}
			state.Retrieved = append(state.Retrieved, retrievedFromObservation(call.ToolName, observation)...)
			state.Messages = append(state.Messages, workflowstate.Message{
				Role:       workflowstate.RoleTool,
				Content:    observation,
				Name:       call.ToolName,
				ToolCallID: call.ID,
			})
		}
	}

	slog.Warn("agent.Run: iteration cap reached without convergence", "maxIterations", a.maxIterations)
	state.Generation = "抱歉，我在達到推理回合上限前未能收斂出最終答案，以下為目前已掌握的資訊摘要。 (the agent did not converge within its iteration budget)"
	state.Messages = append(state.Messages, workflowstate.Message{Role: workflowstate.RoleAssistant, Content: state.Generation})
	return nil
}

// retrievedFromObservation records a lightweight RetrievedDoc for
// observability when a retrieval tool produced output, so
// state.Retrieved reflects what the agent actually saw. This is for
// observability only and is not used for correctness (spec §3).
func retrievedFromObservation(toolName, observation string) []workflowstate.RetrievedDoc {
	if !isRetrievalTool(toolName) || observation == "" {
		return nil
	}
	return []workflowstate.RetrievedDoc{{Content: observation, Similarity: 1}}
}

func isRetrievalTool(name string) bool {
	switch name {
	case "retrieve_datcom_archive", "metadata_search", "article_lookup", "design_area_router":
		return true
	default:
		return false
	}
}

// checkGrounding scans the final answer for sentences making a claim
// with no matching substring in any preceding tool observation, per
// spec §4.7's optional grounding check, logging flagged sentences at
// debug level rather than failing the run.
func (a *Agent) checkGrounding(state *workflowstate.WorkflowState) {
	var observations []string
	for _, m := range state.Messages {
		if m.Role == workflowstate.RoleTool {
			observations = append(observations, m.Content)
		}
	}
	for _, sentence := range splitSentences(state.Generation) {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" || !looksFactual(trimmed) {
			continue
		}
		grounded := false
		for _, obs := range observations {
			if strings.Contains(obs, trimmed) || sharesSignificantSubstring(obs, trimmed) {
				grounded = true
				break
			}
		}
		if !grounded {
			slog.Debug("agent.checkGrounding: ungrounded sentence", "sentence", trimmed)
		}
	}
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '。' || r == '\n' })
}

// looksFactual is a crude heuristic: a sentence citing a source or
// containing a digit is treated as carrying a factual/numerical claim
// worth grounding-checking.
func looksFactual(sentence string) bool {
	if strings.Contains(sentence, "(source:") {
		return true
	}
	for _, r := range sentence {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func sharesSignificantSubstring(haystack, needle string) bool {
	const minRun = 12
	if len(needle) < minRun {
		return strings.Contains(haystack, needle)
	}
	for i := 0; i+minRun <= len(needle); i += minRun / 2 {
		if strings.Contains(haystack, needle[i:i+minRun]) {
			return true
		}
	}
	return false
}

// trimContext implements spec §4.7's deterministic context-bounding
// rule: once the message list exceeds softMessageLimit, retain the
// system message, the initial user message, the last tool message per
// unique tool name, and the last turnsToKeep turns (a turn being one
// assistant message plus its following tool messages).
func trimContext(messages []workflowstate.Message) []workflowstate.Message {
	if len(messages) <= softMessageLimit {
		return messages
	}

	var system, firstUser *workflowstate.Message
	lastToolByName := make(map[string]int)
	for i, m := range messages {
		switch m.Role {
		case workflowstate.RoleSystem:
			if system == nil {
				mm := m
				system = &mm
			}
		case workflowstate.RoleUser:
			if firstUser == nil {
				mm := m
				firstUser = &mm
			}
		case workflowstate.RoleTool:
			lastToolByName[m.Name] = i
		}
	}

	recentStart := recentTurnsStart(messages, turnsToKeep)

	keepIdx := make(map[int]bool)
	for _, idx := range lastToolByName {
		keepIdx[idx] = true
	}
	for i := recentStart; i < len(messages); i++ {
		keepIdx[i] = true
	}

	var trimmed []workflowstate.Message
	if system != nil {
		trimmed = append(trimmed, *system)
	}
	if firstUser != nil {
		trimmed = append(trimmed, *firstUser)
	}
	for i, m := range messages {
		if i == 0 && system != nil {
			continue
		}
		if keepIdx[i] {
			if firstUser != nil && m.Role == workflowstate.RoleUser && m.Content == firstUser.Content && i < recentStart {
				continue
			}
			trimmed = append(trimmed, m)
		}
	}
	return trimmed
}

// recentTurnsStart returns the index where the last n assistant turns
// (and their associated tool messages) begin.
func recentTurnsStart(messages []workflowstate.Message, n int) int {
	turns := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == workflowstate.RoleAssistant {
			turns++
			if turns >= n {
				return i
			}
		}
	}
	return 0
}

// toOpenAIMessages converts the engine's role-tagged message records
// into the openai-go param union types CompleteWithTools expects,
// mirroring coordinator_module.go's message-construction pattern.
func toOpenAIMessages(messages []workflowstate.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case workflowstate.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case workflowstate.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case workflowstate.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case workflowstate.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				id := tc.ID
				if id == "" {
					id = util.GenerateToolCallID()
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   id,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.ToolName,
						Arguments: tc.Arguments,
					},
				})
			}
			assistantMsg := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: toolCalls,
			}
			if m.Content != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg})
		}
	}
	return out
}
