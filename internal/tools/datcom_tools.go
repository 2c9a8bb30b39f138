package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/BTreeMap/datcomagent/internal/workflowstate"
)

// RegisterDatcomTools wires the geometry-conversion, flight-envelope, and
// validation tools used by both the DATCOM Pipeline (C6, called
// directly) and the Reasoning Agent (C7, called through the registry).
// Grounded on original_source/rag_system/tool/datcom_calculator.py's
// per-surface converters and validate step.
func RegisterDatcomTools(reg *Registry) {
	reg.Register(workflowstate.ToolSpec{
		Name:        "convert_wing_to_datcom",
		Description: "Convert wing planform geometry (area, aspect ratio, taper ratio, sweep) into a WGPLNF namelist record.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"S":          map[string]interface{}{"type": "number"},
				"A":          map[string]interface{}{"type": "number"},
				"lambda":     map[string]interface{}{"type": "number"},
				"sweep":      map[string]interface{}{"type": "number"},
				"airfoil":    map[string]interface{}{"type": "string"},
				"dihedral":   map[string]interface{}{"type": "number"},
				"twist":      map[string]interface{}{"type": "number"},
			},
			"required":             []string{"S", "A", "lambda", "sweep"},
			"additionalProperties": false,
		},
		Handler: convertWingHandler,
	})

	reg.Register(workflowstate.ToolSpec{
		Name:        "convert_tail_to_datcom",
		Description: "Convert a tail surface (horizontal or vertical) into an HTPLNF/VTPLNF namelist record.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"component":   map[string]interface{}{"type": "string", "enum": []string{"htail", "vtail"}},
				"S":           map[string]interface{}{"type": "number"},
				"A":           map[string]interface{}{"type": "number"},
				"lambda":      map[string]interface{}{"type": "number"},
				"sweep":       map[string]interface{}{"type": "number"},
				"is_vertical": map[string]interface{}{"type": "boolean"},
			},
			"required":             []string{"component", "S", "A", "lambda", "sweep"},
			"additionalProperties": false,
		},
		Handler: convertTailHandler,
	})

	reg.Register(workflowstate.ToolSpec{
		Name:        "calculate_synthesis_positions",
		Description: "Compute SYNTHS component station positions from fuselage length and positional percentages.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fuselage_length": map[string]interface{}{"type": "number"},
				"wing_pct":        map[string]interface{}{"type": "number"},
				"htail_pct":       map[string]interface{}{"type": "number"},
				"vtail_pct":       map[string]interface{}{"type": "number"},
				"cg_pct":          map[string]interface{}{"type": "number"},
			},
			"required":             []string{"fuselage_length"},
			"additionalProperties": false,
		},
		Handler: calculateSynthesisPositionsHandler,
	})

	reg.Register(workflowstate.ToolSpec{
		Name:        "define_body_geometry",
		Description: "Build a BODY namelist record for an axisymmetric fuselage.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"length":       map[string]interface{}{"type": "number"},
				"max_diameter": map[string]interface{}{"type": "number"},
				"nose_length":  map[string]interface{}{"type": "number"},
				"tail_length":  map[string]interface{}{"type": "number"},
				"n_stations":   map[string]interface{}{"type": "integer"},
			},
			"required":             []string{"length", "max_diameter"},
			"additionalProperties": false,
		},
		Handler: defineBodyGeometryHandler,
	})

	reg.Register(workflowstate.ToolSpec{
		Name:        "generate_fltcon_matrix",
		Description: "Build a FLTCON namelist record enumerating the Mach/altitude/alpha analysis matrix.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"machs":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
				"alts":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
				"alpha0":    map[string]interface{}{"type": "number"},
				"alpha1":    map[string]interface{}{"type": "number"},
				"dalpha":    map[string]interface{}{"type": "number"},
				"weight":    map[string]interface{}{"type": "number"},
			},
			"required":             []string{"machs", "alts", "alpha0", "alpha1", "dalpha"},
			"additionalProperties": false,
		},
		Handler: generateFltconMatrixHandler,
	})

	reg.Register(workflowstate.ToolSpec{
		Name:        "validate_datcom_parameters",
		Description: "Cross-field sanity check over an aggregated DATCOM parameter record; returns a pass/fail report.",
		Parameters: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{"parameters": map[string]interface{}{"type": "object"}},
			"required":             []string{"parameters"},
			"additionalProperties": true,
		},
		Handler: validateDatcomParametersHandler,
	})
}

func convertWingHandler(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		S        float64 `json:"S"`
		A        float64 `json:"A"`
		Lambda   float64 `json:"lambda"`
		Sweep    float64 `json:"sweep"`
		Airfoil  string  `json:"airfoil"`
		Dihedral float64 `json:"dihedral"`
		Twist    float64 `json:"twist"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if err := validateSurfaceInputs(args.S, args.A, args.Lambda); err != nil {
		return "", err
	}
	geo := ComputeSurfaceGeometry(args.S, args.A, args.Lambda)
	namelist := map[string]interface{}{
		"CHRDR":    geo.RootChord,
		"CHRDTP":   geo.TipChord,
		"SSPN":     geo.SemiSpan,
		"SSPNE":    geo.SemiSpan,
		"CHSTAT":   0.25,
		"TWISTA":   args.Twist,
		"SSPNDD":   args.Dihedral,
		"SAVSI":    args.Sweep,
		"CHRDBP":   geo.RootChord,
		"AIRFOIL":  args.Airfoil,
		"MAC":      geo.MAC,
		"SREF":     args.S,
		"ASPECT":   args.A,
		"TAPER":    args.Lambda,
	}
	return marshalNamelist(namelist)
}

func convertTailHandler(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		Component  string  `json:"component"`
		S          float64 `json:"S"`
		A          float64 `json:"A"`
		Lambda     float64 `json:"lambda"`
		Sweep      float64 `json:"sweep"`
		IsVertical bool    `json:"is_vertical"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if err := validateSurfaceInputs(args.S, args.A, args.Lambda); err != nil {
		return "", err
	}
	geo := ComputeSurfaceGeometry(args.S, args.A, args.Lambda)
	namelist := map[string]interface{}{
		"component": args.Component,
		"CHRDR":     geo.RootChord,
		"CHRDTP":    geo.TipChord,
		"SSPN":      geo.SemiSpan,
		"SSPNE":     geo.SemiSpan,
		"CHSTAT":    0.25,
		"SAVSI":     args.Sweep,
		"MAC":       geo.MAC,
		"SREF":      args.S,
		"ASPECT":    args.A,
		"TAPER":     args.Lambda,
		"is_vertical": args.IsVertical,
	}
	return marshalNamelist(namelist)
}

// InferredHTailArea and InferredVTailArea implement the documented
// fallback ratios from spec §4.6 stage 7 for tails not explicitly
// described: htail ≈ 0.20·S_wing, vtail ≈ 0.15·S_wing.
const (
	InferredHTailAreaRatio = 0.20
	InferredVTailAreaRatio = 0.15
	InferredTailAspect     = 4.0
	InferredTailTaper      = 0.45
	InferredTailSweep      = 30.0
)

func calculateSynthesisPositionsHandler(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		FuselageLength float64 `json:"fuselage_length"`
		WingPct        float64 `json:"wing_pct"`
		HTailPct       float64 `json:"htail_pct"`
		VTailPct       float64 `json:"vtail_pct"`
		CGPct          float64 `json:"cg_pct"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if args.FuselageLength <= 0 {
		return "", fmt.Errorf("fuselage_length must be positive")
	}
	// Documented defaults per spec §4.6 stage 5 when fractions are unset.
	if args.WingPct == 0 {
		args.WingPct = 40
	}
	if args.HTailPct == 0 {
		args.HTailPct = 90
	}
	if args.VTailPct == 0 {
		args.VTailPct = 65
	}
	if args.CGPct == 0 {
		args.CGPct = 35
	}

	namelist := map[string]interface{}{
		"XW":  args.FuselageLength * args.WingPct / 100,
		"XH":  args.FuselageLength * args.HTailPct / 100,
		"XV":  args.FuselageLength * args.VTailPct / 100,
		"XCG": args.FuselageLength * args.CGPct / 100,
	}
	return marshalNamelist(namelist)
}

func defineBodyGeometryHandler(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		Length      float64 `json:"length"`
		MaxDiameter float64 `json:"max_diameter"`
		NoseLength  float64 `json:"nose_length"`
		TailLength  float64 `json:"tail_length"`
		NStations   int     `json:"n_stations"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Length <= 0 || args.MaxDiameter <= 0 {
		return "", fmt.Errorf("length and max_diameter must be positive")
	}
	if args.NStations <= 0 {
		args.NStations = 10
	}

	stations := make([]float64, args.NStations)
	radii := make([]float64, args.NStations)
	for i := 0; i < args.NStations; i++ {
		x := args.Length * float64(i) / float64(args.NStations-1)
		stations[i] = x
		radii[i] = BodyRadiusAt(x, args.Length, args.MaxDiameter/2, args.NoseLength, args.TailLength)
	}

	namelist := map[string]interface{}{
		"NX":     args.NStations,
		"X":      stations,
		"R":      radii,
		"BLA":    0.0,
		"LENGTH": args.Length,
	}
	return marshalNamelist(namelist)
}

// bodyRadiusAt approximates a fuselage radius profile: a smooth ogive
// nose, a constant-radius mid-body, and a linearly tapered tail cone.
func BodyRadiusAt(x, length, maxRadius, noseLength, tailLength float64) float64 {
	if noseLength <= 0 {
		noseLength = length * 0.15
	}
	if tailLength <= 0 {
		tailLength = length * 0.20
	}
	switch {
	case x <= noseLength:
		frac := x / noseLength
		return maxRadius * math.Sqrt(1-math.Pow(1-frac, 2))
	case x >= length-tailLength:
		frac := (length - x) / tailLength
		return maxRadius * frac
	default:
		return maxRadius
	}
}

func generateFltconMatrixHandler(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		Machs  []float64 `json:"machs"`
		Alts   []float64 `json:"alts"`
		Alpha0 float64   `json:"alpha0"`
		Alpha1 float64   `json:"alpha1"`
		DAlpha float64   `json:"dalpha"`
		Weight float64   `json:"weight"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if len(args.Machs) == 0 || len(args.Alts) == 0 {
		return "", fmt.Errorf("machs and alts must each have at least one entry")
	}
	if args.DAlpha <= 0 {
		return "", fmt.Errorf("dalpha must be positive")
	}

	alphas := AlphaRange(args.Alpha0, args.Alpha1, args.DAlpha)
	nmach, nalt, nalpha := len(args.Machs), len(args.Alts), len(alphas)
	if nmach*nalt*nalpha > 400 {
		return "", fmt.Errorf("analysis point count %d exceeds DATCOM hard limit of 400 (NMACH=%d, NALT=%d, NALPHA=%d)", nmach*nalt*nalpha, nmach, nalt, nalpha)
	}

	namelist := map[string]interface{}{
		"NMACH":  nmach,
		"MACH":   args.Machs,
		"NALT":   nalt,
		"ALT":    args.Alts,
		"NALPHA": nalpha,
		"ALSCHD": alphas,
		"WT":     args.Weight,
	}
	return marshalNamelist(namelist)
}

// AlphaRange reproduces spec §8's NALPHA formula:
// NALPHA = floor((alpha1-alpha0)/dalpha) + 1, inclusive of both
// endpoints (alpha1 included only when evenly divisible).
func AlphaRange(alpha0, alpha1, dalpha float64) []float64 {
	n := int(math.Floor((alpha1-alpha0)/dalpha)) + 1
	if n < 1 {
		n = 1
	}
	alphas := make([]float64, n)
	for i := 0; i < n; i++ {
		alphas[i] = alpha0 + float64(i)*dalpha
	}
	return alphas
}

func validateDatcomParametersHandler(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		Parameters map[string]interface{} `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	failures := ValidateParameters(args.Parameters)
	if len(failures) == 0 {
		return "validation passed: all parameters within documented ranges", nil
	}
	report := "validation failed:\n"
	for _, f := range failures {
		report += "- " + f + "\n"
	}
	return report, nil
}

// ValidateParameters runs the cross-field sanity checks spec §4.6 stage 8
// requires, returning one human-readable failure string per violation
// (empty slice means the record passed). Shared by the
// validate_datcom_parameters tool and the DATCOM Pipeline's direct call.
func ValidateParameters(params map[string]interface{}) []string {
	var failures []string
	get := func(key string) (float64, bool) {
		v, ok := params[key]
		if !ok {
			return 0, false
		}
		f, ok := v.(float64)
		return f, ok
	}

	if s, ok := get("SREF"); ok && s <= 0 {
		failures = append(failures, "SREF (wing area) must be positive")
	}
	if aspect, ok := get("ASPECT"); ok && aspect <= 0 {
		failures = append(failures, "ASPECT (aspect ratio) must be positive")
	}
	if taper, ok := get("TAPER"); ok && (taper <= 0 || taper > 1) {
		failures = append(failures, "TAPER (taper ratio) must be in (0, 1]")
	}
	if nmach, ok := get("NMACH"); ok && nmach < 1 {
		failures = append(failures, "NMACH must be at least 1")
	}
	if weight, ok := get("WT"); ok && weight <= 0 {
		failures = append(failures, "WT (weight) must be positive")
	}
	if nmach, mok := get("NMACH"); mok {
		if nalt, naok := get("NALT"); naok {
			if nalpha, nalok := get("NALPHA"); nalok {
				if nmach*nalt*nalpha > 400 {
					failures = append(failures, "NMACH*NALT*NALPHA exceeds the 400-point DATCOM limit")
				}
			}
		}
	}
	return failures
}

func validateSurfaceInputs(s, a, lambda float64) error {
	if s <= 0 {
		return fmt.Errorf("S (area) must be positive")
	}
	if a <= 0 {
		return fmt.Errorf("A (aspect ratio) must be positive")
	}
	if lambda <= 0 || lambda > 1 {
		return fmt.Errorf("lambda (taper ratio) must be in (0, 1]")
	}
	return nil
}

func marshalNamelist(namelist map[string]interface{}) (string, error) {
	b, err := json.Marshal(namelist)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
