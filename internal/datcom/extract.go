// Package datcom implements the DATCOM Pipeline (C6): a fixed, linear
// 9-stage sequence from free-form parameter extraction to a formatted
// .dat file. Grounded on original_source/rag_system/datcom_node.py's
// datcom_sequence_node and PARAM_EXTRACTION_PROMPT for stage order and
// extraction contract; the final format is spec-authoritative (see
// DESIGN.md Open Question 4) rather than the original's simplified
// _build_datcom_format.
package datcom

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/BTreeMap/datcomagent/internal/tools"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/openai/openai-go"
)

const extractionSystemPrompt = `Extract DATCOM design parameters from the user's message into strict JSON matching this shape. Include a field only if the user explicitly stated it; omit fields entirely that were not mentioned (never invent or default a value here). Reply with JSON only, no prose, no markdown fences.

{
  "aircraft_name": string,
  "wing": {"S": number, "A": number, "lambda": number, "sweep": number, "airfoil": string, "dihedral": number, "twist": number},
  "htail": {"S": number, "A": number, "lambda": number, "sweep": number},
  "vtail": {"S": number, "A": number, "lambda": number, "sweep": number},
  "body": {"length": number, "max_diameter": number, "nose_length": number, "tail_length": number, "n_stations": integer},
  "synthesis": {"wing_pct": number, "htail_pct": number, "vtail_pct": number, "cg_pct": number},
  "flight": {"mach_numbers": [number], "altitudes": [number], "alpha0": number, "alpha1": number, "dalpha": number, "weight": number}
}`

type extractedSurface struct {
	S        *float64 `json:"S"`
	A        *float64 `json:"A"`
	Lambda   *float64 `json:"lambda"`
	Sweep    *float64 `json:"sweep"`
	Airfoil  string   `json:"airfoil"`
	Dihedral *float64 `json:"dihedral"`
	Twist    *float64 `json:"twist"`
}

type extractedBody struct {
	Length      *float64 `json:"length"`
	MaxDiameter *float64 `json:"max_diameter"`
	NoseLength  *float64 `json:"nose_length"`
	TailLength  *float64 `json:"tail_length"`
	NStations   *int     `json:"n_stations"`
}

type extractedSynthesis struct {
	WingPct  *float64 `json:"wing_pct"`
	HTailPct *float64 `json:"htail_pct"`
	VTailPct *float64 `json:"vtail_pct"`
	CGPct    *float64 `json:"cg_pct"`
}

type extractedFlight struct {
	MachNumbers []float64 `json:"mach_numbers"`
	Altitudes   []float64 `json:"altitudes"`
	Alpha0      *float64  `json:"alpha0"`
	Alpha1      *float64  `json:"alpha1"`
	DAlpha      *float64  `json:"dalpha"`
	Weight      *float64  `json:"weight"`
}

type extractedParams struct {
	AircraftName string              `json:"aircraft_name"`
	Wing         *extractedSurface   `json:"wing"`
	HTail        *extractedSurface   `json:"htail"`
	VTail        *extractedSurface   `json:"vtail"`
	Body         *extractedBody      `json:"body"`
	Synthesis    *extractedSynthesis `json:"synthesis"`
	Flight       *extractedFlight    `json:"flight"`
}

// extract is stage 1: prompt C2 for strict JSON, retrying once on a
// parse failure before giving up.
func extract(ctx context.Context, chat *chatclient.Client, question string) (*extractedParams, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		reply, err := chat.Complete(ctx, []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(question),
		})
		if err != nil {
			return nil, fmt.Errorf("extraction chat call failed: %w", err)
		}
		reply = stripJSONFence(reply)

		var parsed extractedParams
		if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
			lastErr = err
			slog.Debug("datcom.extract: JSON parse failed, retrying", "attempt", attempt, "error", err)
			continue
		}
		return &parsed, nil
	}
	return nil, fmt.Errorf("failed to parse extraction JSON after retry: %w", lastErr)
}

func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func toWingParams(s *extractedSurface) *workflowstate.WingParams {
	if s == nil {
		return nil
	}
	w := &workflowstate.WingParams{Airfoil: s.Airfoil}
	if s.S != nil {
		w.S = *s.S
	}
	if s.A != nil {
		w.A = *s.A
	}
	if s.Lambda != nil {
		w.Lambda = *s.Lambda
	}
	if s.Sweep != nil {
		w.SweepAngle = *s.Sweep
		w.SweepStated = true
	}
	if s.Dihedral != nil {
		w.Dihedral = *s.Dihedral
	}
	if s.Twist != nil {
		w.Twist = *s.Twist
	}
	return w
}

func toTailParams(s *extractedSurface, isVertical bool) *workflowstate.TailParams {
	w := toWingParams(s)
	if w == nil {
		return nil
	}
	return &workflowstate.TailParams{WingParams: *w, IsVertical: isVertical}
}

func toBodyParams(b *extractedBody) *workflowstate.BodyParams {
	if b == nil {
		return nil
	}
	out := &workflowstate.BodyParams{}
	if b.Length != nil {
		out.Length = *b.Length
	}
	if b.MaxDiameter != nil {
		out.MaxDiameter = *b.MaxDiameter
	}
	if b.NoseLength != nil {
		out.NoseLength = *b.NoseLength
	}
	if b.TailLength != nil {
		out.TailLength = *b.TailLength
	}
	if b.NStations != nil {
		out.NStations = *b.NStations
	}
	return out
}

func toSynthesisParams(s *extractedSynthesis, fuselageLength float64) *workflowstate.SynthesisParams {
	if s == nil {
		return nil
	}
	out := &workflowstate.SynthesisParams{FuselageLength: fuselageLength}
	if s.WingPct != nil {
		out.WingPositionPercent = *s.WingPct
	}
	if s.HTailPct != nil {
		out.HTailPositionPercent = *s.HTailPct
	}
	if s.VTailPct != nil {
		out.VTailPositionPercent = *s.VTailPct
	}
	if s.CGPct != nil {
		out.CGPositionPercent = *s.CGPct
	}
	return out
}

func toFlightConditions(f *extractedFlight) *workflowstate.FlightConditions {
	if f == nil {
		return nil
	}
	out := &workflowstate.FlightConditions{
		MachNumbers: f.MachNumbers,
		Altitudes:   f.Altitudes,
	}
	if f.Weight != nil {
		out.Weight = *f.Weight
	}
	if f.Alpha0 != nil && f.Alpha1 != nil && f.DAlpha != nil {
		out.AlphaDegrees = tools.AlphaRange(*f.Alpha0, *f.Alpha1, *f.DAlpha)
	}
	return out
}
