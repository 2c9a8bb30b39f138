package datcom

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/BTreeMap/datcomagent/internal/tools"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
)

// maxAnalysisPoints is DATCOM's hard limit on NMACH*NALT*NALPHA.
const maxAnalysisPoints = 400

// Pipeline runs the fixed 9-stage DATCOM generation sequence.
type Pipeline struct {
	chat *chatclient.Client
}

// New constructs a DATCOM Pipeline backed by a Chat Client for the
// extraction stage.
func New(chat *chatclient.Client) *Pipeline {
	return &Pipeline{chat: chat}
}

// Run executes stages 1-9 against state, writing state.Generation and
// state.DatcomFile. Any stage failure after the Gate stage is caught
// and reported in state.Generation rather than propagated, per spec
// §4.6's failure semantics: the engine never crashes the run.
func (p *Pipeline) Run(ctx context.Context, state *workflowstate.WorkflowState) error {
	// Stage 1: Extract.
	extracted, err := extract(ctx, p.chat, state.Question)
	if err != nil {
		slog.Warn("datcom.Pipeline.Run: extraction failed", "error", err)
		state.Generation = "無法解析您提供的參數，請提供機翼面積、展弦比、梯形比、後掠角以及飛行條件（馬赫數、高度、攻角範圍）。 (could not parse the requested DATCOM parameters)"
		return nil
	}

	params := workflowstate.DatcomParams{
		AircraftName: extracted.AircraftName,
		Wing:         toWingParams(extracted.Wing),
		HTail:        toTailParams(extracted.HTail, false),
		VTail:        toTailParams(extracted.VTail, true),
		Body:         toBodyParams(extracted.Body),
		Flight:       toFlightConditions(extracted.Flight),
	}
	fuselageLength := 0.0
	if params.Body != nil {
		fuselageLength = params.Body.Length
	}
	params.Synthesis = toSynthesisParams(extracted.Synthesis, fuselageLength)
	state.DatcomParams = params

	// Stage 2: Gate.
	if missing := gateMissingFields(params); len(missing) > 0 {
		state.Generation = clarificationMessage(missing)
		return nil
	}

	var report strings.Builder

	// Stage 3: Wing conversion.
	wingGeo := tools.ComputeSurfaceGeometry(params.Wing.S, params.Wing.A, params.Wing.Lambda)

	// Stage 4: Flight matrix.
	nmach, nalt, nalpha := len(params.Flight.MachNumbers), len(params.Flight.Altitudes), len(params.Flight.AlphaDegrees)
	if nmach*nalt*nalpha > maxAnalysisPoints {
		fmt.Fprintf(&report, "error: analysis point count %d exceeds DATCOM's %d-point limit (NMACH=%d, NALT=%d, NALPHA=%d)\n", nmach*nalt*nalpha, maxAnalysisPoints, nmach, nalt, nalpha)
	}

	// Stage 5: Synthesis positions.
	synth := resolveSynthesis(params.Synthesis, fuselageLength)

	// Stage 6: Body geometry (skip if absent).
	var bodyStations []bodyStation
	if params.Body != nil {
		bodyStations = computeBodyStations(*params.Body)
	}

	// Stage 7: Tail conversions, inferring missing tails from the wing.
	htailGeo, htailSweep, htailInferred := resolveTail(params.HTail, params.Wing.S, tools.InferredHTailAreaRatio)
	vtailGeo, vtailSweep, vtailInferred := resolveTail(params.VTail, params.Wing.S, tools.InferredVTailAreaRatio)
	if htailInferred {
		report.WriteString("note: horizontal tail geometry inferred from wing area (0.20*S_wing) as no htail data was given\n")
	}
	if vtailInferred {
		report.WriteString("note: vertical tail geometry inferred from wing area (0.15*S_wing) as no vtail data was given\n")
	}

	// Stage 8: Validate.
	validationRecord := buildValidationRecord(params, wingGeo, nmach, nalt, nalpha)
	failures := tools.ValidateParameters(validationRecord)
	if len(failures) > 0 {
		report.WriteString("validation failed:\n")
		for _, f := range failures {
			report.WriteString("- " + f + "\n")
		}
	} else {
		report.WriteString("validation passed: all parameters within documented ranges\n")
	}

	// Stage 9: Format.
	datFile := formatDatFile(formatInput{
		AircraftName: orDefault(params.AircraftName, "UNNAMED"),
		Wing:         wingGeo,
		WingParams:   *params.Wing,
		HTail:        htailGeo,
		HTailSweep:   htailSweep,
		VTail:        vtailGeo,
		VTailSweep:   vtailSweep,
		HasHTail:     htailGeo != nil,
		HasVTail:     vtailGeo != nil,
		Body:         bodyStations,
		Synthesis:    synth,
		Flight:       *params.Flight,
	})
	state.DatcomFile = datFile

	var out strings.Builder
	out.WriteString(datFile)
	out.WriteString("\n\n")
	out.WriteString(report.String())
	state.Generation = out.String()
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func gateMissingFields(params workflowstate.DatcomParams) []string {
	var missing []string
	if params.Wing == nil {
		missing = append(missing, "機翼幾何 (S, A, λ, sweep)")
	} else {
		if params.Wing.S == 0 {
			missing = append(missing, "機翼面積 S")
		}
		if params.Wing.A == 0 {
			missing = append(missing, "展弦比 A")
		}
		if params.Wing.Lambda == 0 {
			missing = append(missing, "梯形比 λ")
		}
		if !params.Wing.SweepStated {
			missing = append(missing, "機翼後掠角 sweep")
		}
	}
	if params.Flight == nil {
		missing = append(missing, "飛行條件 (馬赫數、高度、攻角範圍)")
	} else {
		if len(params.Flight.MachNumbers) == 0 {
			missing = append(missing, "馬赫數")
		}
		if len(params.Flight.Altitudes) == 0 {
			missing = append(missing, "高度")
		}
		if len(params.Flight.AlphaDegrees) == 0 {
			missing = append(missing, "攻角範圍")
		}
	}
	return missing
}

func clarificationMessage(missing []string) string {
	return "請提供以下缺少的參數後再試一次： " + strings.Join(missing, "、") + "。 (missing required parameters: " + strings.Join(missing, ", ") + ")"
}

func resolveSynthesis(s *workflowstate.SynthesisParams, fuselageLength float64) workflowstate.SynthesisParams {
	if s == nil {
		s = &workflowstate.SynthesisParams{FuselageLength: fuselageLength}
	}
	if s.WingPositionPercent == 0 {
		s.WingPositionPercent = 40
	}
	if s.HTailPositionPercent == 0 {
		s.HTailPositionPercent = 90
	}
	if s.VTailPositionPercent == 0 {
		s.VTailPositionPercent = 65
	}
	if s.CGPositionPercent == 0 {
		s.CGPositionPercent = 35
	}
	return *s
}

// resolveTail returns the tail's geometry and sweep angle, inferring
// both from the wing when no explicit tail data was given. The bool
// result reports whether inference occurred.
func resolveTail(tail *workflowstate.TailParams, wingArea, inferredRatio float64) (*tools.SurfaceGeometry, float64, bool) {
	if tail != nil && tail.S > 0 && tail.A > 0 && tail.Lambda > 0 {
		geo := tools.ComputeSurfaceGeometry(tail.S, tail.A, tail.Lambda)
		return &geo, tail.SweepAngle, false
	}
	if wingArea <= 0 {
		return nil, 0, false
	}
	geo := tools.ComputeSurfaceGeometry(wingArea*inferredRatio, tools.InferredTailAspect, tools.InferredTailTaper)
	return &geo, tools.InferredTailSweep, true
}

type bodyStation struct {
	X float64
	R float64
}

func computeBodyStations(b workflowstate.BodyParams) []bodyStation {
	n := b.NStations
	if n <= 0 {
		n = 10
	}
	stations := make([]bodyStation, n)
	for i := 0; i < n; i++ {
		x := b.Length * float64(i) / float64(n-1)
		stations[i] = bodyStation{X: x, R: tools.BodyRadiusAt(x, b.Length, b.MaxDiameter/2, b.NoseLength, b.TailLength)}
	}
	return stations
}

func buildValidationRecord(params workflowstate.DatcomParams, wing tools.SurfaceGeometry, nmach, nalt, nalpha int) map[string]interface{} {
	record := map[string]interface{}{
		"SREF":   params.Wing.S,
		"ASPECT": params.Wing.A,
		"TAPER":  params.Wing.Lambda,
		"NMACH":  float64(nmach),
		"NALT":   float64(nalt),
		"NALPHA": float64(nalpha),
	}
	if params.Flight != nil {
		record["WT"] = params.Flight.Weight
	}
	return record
}
