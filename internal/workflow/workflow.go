// Package workflow implements the Workflow Engine (C8): the single
// run(state) -> state operation that routes a query through C5 and
// dispatches to C6 or C7. Grounded on the teacher's
// internal/flow.Generate dispatcher, generalized from a registry-key
// lookup to a two-branch switch on intent since this spec names
// exactly two execution branches rather than an open generator set.
package workflow

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/datcomagent/internal/agent"
	"github.com/BTreeMap/datcomagent/internal/datcom"
	"github.com/BTreeMap/datcomagent/internal/router"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
)

// Engine wires together the Intent Router and the two execution
// branches it dispatches to.
type Engine struct {
	router  *router.Router
	pipeline *datcom.Pipeline
	agent    *agent.Agent
}

// New constructs a Workflow Engine from its three collaborators.
func New(r *router.Router, pipeline *datcom.Pipeline, reasoningAgent *agent.Agent) *Engine {
	return &Engine{router: r, pipeline: pipeline, agent: reasoningAgent}
}

// Run executes one query end to end: C5 classifies intent, then
// exactly one of C6 or C7 runs to produce state.Generation. Invariant
// 1 (intent written before the branch executes) and invariant 2 (a
// successful run ends with non-empty generation) are both guaranteed
// here, not left to the branches to uphold independently.
func (e *Engine) Run(ctx context.Context, question, collection string) (*workflowstate.WorkflowState, error) {
	state := &workflowstate.WorkflowState{
		Question:   question,
		Collection: collection,
	}

	state.Intent = e.router.Classify(ctx, state)
	slog.Debug("workflow.Engine.Run: routed", "intent", state.Intent)

	var err error
	switch state.Intent {
	case workflowstate.IntentDatcomGeneration:
		err = e.pipeline.Run(ctx, state)
	default:
		err = e.agent.Run(ctx, state)
	}
	if err != nil {
		return state, err
	}

	if state.Generation == "" {
		state.Generation = "很抱歉，系統未能產生回應。 (the engine produced no output for this query)"
	}
	return state, nil
}
