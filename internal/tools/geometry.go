// geometry.go implements the DATCOM surface-geometry formulas shared by
// convert_wing_to_datcom and convert_tail_to_datcom, grounded on
// original_source/rag_system/tool/datcom_calculator.py's
// WingGeometryCalculator (span/chord/MAC derivation), applied identically
// to wing and both tail surfaces per spec §4.6.
package tools

import "math"

// SurfaceGeometry is the result of converting a planform description
// (area, aspect ratio, taper ratio) into the span/chord/MAC values a
// WGPLNF/HTPLNF/VTPLNF namelist block needs.
type SurfaceGeometry struct {
	Span        float64 // b
	RootChord   float64 // CHRDR
	TipChord    float64 // CHRDTP
	SemiSpan    float64 // SSPN
	MAC         float64 // mean aerodynamic chord
}

// ComputeSurfaceGeometry applies the formulas from spec §4.6:
//
//	b      = sqrt(A * S)
//	Croot  = 2S / (b * (1 + λ))
//	Ctip   = λ * Croot
//	SSPN   = b / 2
//	MAC    = (2/3) * Croot * (1 + λ + λ²) / (1 + λ)
func ComputeSurfaceGeometry(area, aspectRatio, taperRatio float64) SurfaceGeometry {
	b := math.Sqrt(aspectRatio * area)
	croot := 2 * area / (b * (1 + taperRatio))
	ctip := taperRatio * croot
	mac := (2.0 / 3.0) * croot * (1 + taperRatio + taperRatio*taperRatio) / (1 + taperRatio)
	return SurfaceGeometry{
		Span:      b,
		RootChord: croot,
		TipChord:  ctip,
		SemiSpan:  b / 2,
		MAC:       mac,
	}
}
