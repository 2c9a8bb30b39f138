// Package workflowstate defines the shared data model carried through a
// single query run: the conversation state, retrieved documents, tool
// schemas, and the DATCOM parameter set. Every component (embedding
// client, chat client, vector store, tool registry, router, pipeline,
// agent, workflow engine) reads and writes this model rather than
// passing component-specific structs between each other.
package workflowstate

import "context"

// Intent is the result of routing a question to one of the two
// top-level execution branches.
type Intent string

const (
	IntentDatcomGeneration Intent = "datcom_generation"
	IntentGeneralQuery     Intent = "general_query"
)

// Role identifies the speaker of a Message in a chat-style transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in the conversation carried through the
// reasoning agent's tool loop. ToolCallID is set on tool-role messages
// and ToolCalls is set on assistant-role messages that requested tool
// invocations.
type Message struct {
	Role       Role
	Content    string
	Name       string // tool name, set on tool-role messages
	ToolCallID string
	ToolCalls  []ToolCallRequest
}

// ToolCallRequest is one tool invocation an assistant turn asked for.
type ToolCallRequest struct {
	ID        string
	ToolName  string
	Arguments string // raw JSON arguments
}

// RetrievedDoc is one passage returned from the vector store, carrying
// enough provenance to cite it in a generated answer.
type RetrievedDoc struct {
	ID         string
	Collection string
	Content    string
	Similarity float64
	Metadata   map[string]string
}

// ToolSpec describes one callable tool: its OpenAI-compatible schema
// plus the handler that executes it. Handlers are supplied by
// internal/tools; this package only names the shape.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema, "type": "object", ...
	Handler     ToolHandler
}

// ToolHandler executes a tool call given its raw JSON arguments and
// returns the tool's observation text (or an error).
type ToolHandler func(ctx context.Context, rawArgs string) (string, error)

// WingParams describes a trapezoidal wing or tail planform before
// conversion to DATCOM namelist fields.
type WingParams struct {
	S           float64 // reference area, ft^2
	A           float64 // aspect ratio
	Lambda      float64 // taper ratio, tip/root chord
	SweepAngle  float64 // leading-edge sweep, degrees
	SweepStated bool    // true when the user explicitly gave a sweep value
	Airfoil     string
	Dihedral    float64
	Twist       float64
	SweepStaAt  float64 // chord station sweep is referenced to, CHSTAT
}

// TailParams describes a horizontal or vertical tail surface.
type TailParams struct {
	WingParams
	IsVertical bool
}

// BodyParams describes the fuselage geometry for the $BODY namelist.
type BodyParams struct {
	Length      float64
	MaxDiameter float64
	NoseLength  float64
	TailLength  float64
	NStations   int
}

// SynthesisParams locates the wing/tail/cg stations along the fuselage.
type SynthesisParams struct {
	FuselageLength       float64
	WingPositionPercent  float64
	HTailPositionPercent float64
	VTailPositionPercent float64
	CGPositionPercent    float64
	WingZ                float64
	HTailZ               float64
	VTailZ               float64
}

// FlightConditions describes the Mach/altitude/alpha analysis matrix.
type FlightConditions struct {
	MachNumbers  []float64
	Altitudes    []float64
	AlphaDegrees []float64
	Weight       float64
	LoopMode     float64
}

// DatcomParams aggregates every optional input the extraction stage may
// pull out of a free-form question. Pointer fields are nil when unset,
// letting the gate stage (internal/datcom) distinguish "not mentioned"
// from "zero".
type DatcomParams struct {
	AircraftName string
	Wing         *WingParams
	HTail        *TailParams
	VTail        *TailParams
	Body         *BodyParams
	Synthesis    *SynthesisParams
	Flight       *FlightConditions
}

// WorkflowState is the single data model threaded through a run:
// routing decision, retrieved context, tool transcript, and the
// extracted DATCOM parameters when applicable.
type WorkflowState struct {
	Question     string
	Collection   string
	Intent       Intent
	Messages     []Message
	Retrieved    []RetrievedDoc
	DatcomParams DatcomParams
	Generation   string
	DatcomFile   string
}
