// Package router implements the Intent Router (C5): a single-token
// binary classification of a question into datcom_generation or
// general_query. Grounded on original_source/rag_system/router_node.py's
// hybrid router (keyword heuristic backed by an LLM call).
package router

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/openai/openai-go"
)

const systemPrompt = `Classify the user's question into exactly one of two categories and reply with only that word:
- datcom_generation: the question asks to generate, build, or produce a DATCOM input file, for005, namelist deck, or gives explicit aerodynamic numeric design parameters intended for such a file.
- general_query: any other question, including questions that merely ask about DATCOM concepts, namelists, or terminology.
Reply with exactly one word: datcom_generation or general_query.`

var datcomKeywordPattern = regexp.MustCompile(`(?i)\.dat\b|\bfor005\b|\bnamelist\b`)

// numericParamPattern looks for the kind of "S=530, A=2.8, sweep=45"
// parameter lists that signal an explicit design-parameter dump rather
// than a conceptual question, per router_node.py's heuristic pass.
var numericParamPattern = regexp.MustCompile(`(?i)\b(S|A|λ|lambda|sweep|mach|alt|alpha|α|W)\s*=\s*-?[\d.]+`)

// Router classifies questions using C2 with a heuristic fallback.
type Router struct {
	chat *chatclient.Client
}

// New constructs an Intent Router backed by a Chat Client.
func New(chat *chatclient.Client) *Router {
	return &Router{chat: chat}
}

// Classify returns the routed intent for question, seeding state's
// message list with the user turn as spec §4.5 requires. Chat client
// failures are non-fatal: the router falls back to general_query and
// logs the error.
func (r *Router) Classify(ctx context.Context, state *workflowstate.WorkflowState) workflowstate.Intent {
	state.Messages = append(state.Messages, workflowstate.Message{Role: workflowstate.RoleUser, Content: state.Question})

	if datcomKeywordPattern.MatchString(state.Question) {
		return workflowstate.IntentDatcomGeneration
	}

	hasNumericParams := len(numericParamPattern.FindAllString(state.Question, -1)) >= 3

	reply, err := r.chat.Complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(state.Question),
	})
	if err != nil {
		slog.Warn("router.Classify: chat completion failed, defaulting to general_query", "error", err)
		if hasNumericParams {
			return workflowstate.IntentDatcomGeneration
		}
		return workflowstate.IntentGeneralQuery
	}

	switch strings.ToLower(strings.TrimSpace(reply)) {
	case string(workflowstate.IntentDatcomGeneration):
		return workflowstate.IntentDatcomGeneration
	case string(workflowstate.IntentGeneralQuery):
		return workflowstate.IntentGeneralQuery
	default:
		slog.Debug("router.Classify: unparseable reply, applying heuristic fallback", "reply", reply)
		if hasNumericParams {
			return workflowstate.IntentDatcomGeneration
		}
		return workflowstate.IntentGeneralQuery
	}
}
