package datcom

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/datcomagent/internal/tools"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
)

// formatInput aggregates everything the formatter (stage 9) needs,
// already resolved by earlier stages.
type formatInput struct {
	AircraftName string
	Wing         tools.SurfaceGeometry
	WingParams   workflowstate.WingParams
	HTail        *tools.SurfaceGeometry
	HTailSweep   float64
	VTail        *tools.SurfaceGeometry
	VTailSweep   float64
	HasHTail     bool
	HasVTail     bool
	Body         []bodyStation
	Synthesis    workflowstate.SynthesisParams
	Flight       workflowstate.FlightConditions
}

// formatDatFile assembles the namelist blocks in the fixed order spec
// §4.6/§6 require: FLTCON, SYNTHS, BODY, WGPLNF, HTPLNF, VTPLNF,
// omitting absent sections. Every namelist begins with " $NAME" and
// ends with "$"; real literals always carry a decimal point.
func formatDatFile(in formatInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "* DATCOM input generated for %s\n", in.AircraftName)
	fmt.Fprintf(&b, "* source: wing S=%s A=%s lambda=%s sweep=%s\n",
		real(in.WingParams.S), real(in.WingParams.A), real(in.WingParams.Lambda), real(in.WingParams.SweepAngle))

	b.WriteString(fltconBlock(in.Flight))
	b.WriteString(synthsBlock(in.Synthesis))
	if len(in.Body) > 0 {
		b.WriteString(bodyBlock(in.Body))
	}
	b.WriteString(wgplnfBlock(in.WingParams, in.Wing))
	if in.HasHTail && in.HTail != nil {
		b.WriteString(surfaceBlock("HTPLNF", *in.HTail, in.HTailSweep))
	}
	if in.HasVTail && in.VTail != nil {
		b.WriteString(surfaceBlock("VTPLNF", *in.VTail, in.VTailSweep))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func real(v float64) string {
	s := fmt.Sprintf("%g", v)
	if !strings.Contains(s, ".") {
		s += "."
	}
	return s
}

func realArray(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = real(v)
	}
	return strings.Join(parts, ",")
}

func fltconBlock(flight workflowstate.FlightConditions) string {
	var b strings.Builder
	b.WriteString(" $FLTCON\n")
	fmt.Fprintf(&b, "  NMACH=%d.,\n", len(flight.MachNumbers))
	fmt.Fprintf(&b, "  MACH(1)=%s,\n", realArray(flight.MachNumbers))
	fmt.Fprintf(&b, "  NALT=%d.,\n", len(flight.Altitudes))
	fmt.Fprintf(&b, "  ALT(1)=%s,\n", realArray(flight.Altitudes))
	fmt.Fprintf(&b, "  NALPHA=%d.,\n", len(flight.AlphaDegrees))
	fmt.Fprintf(&b, "  ALSCHD(1)=%s,\n", realArray(flight.AlphaDegrees))
	fmt.Fprintf(&b, "  WT=%s\n", real(flight.Weight))
	b.WriteString(" $\n")
	return b.String()
}

func synthsBlock(s workflowstate.SynthesisParams) string {
	xw := s.FuselageLength * s.WingPositionPercent / 100
	xh := s.FuselageLength * s.HTailPositionPercent / 100
	xv := s.FuselageLength * s.VTailPositionPercent / 100
	xcg := s.FuselageLength * s.CGPositionPercent / 100

	var b strings.Builder
	b.WriteString(" $SYNTHS\n")
	fmt.Fprintf(&b, "  XCG=%s,\n", real(xcg))
	fmt.Fprintf(&b, "  XW=%s,\n", real(xw))
	fmt.Fprintf(&b, "  XH=%s,\n", real(xh))
	fmt.Fprintf(&b, "  XV=%s,\n", real(xv))
	fmt.Fprintf(&b, "  ZW=%s,\n", real(s.WingZ))
	fmt.Fprintf(&b, "  ZH=%s,\n", real(s.HTailZ))
	fmt.Fprintf(&b, "  ZV=%s\n", real(s.VTailZ))
	b.WriteString(" $\n")
	return b.String()
}

func bodyBlock(stations []bodyStation) string {
	xs := make([]float64, len(stations))
	rs := make([]float64, len(stations))
	for i, st := range stations {
		xs[i] = st.X
		rs[i] = st.R
	}
	var b strings.Builder
	b.WriteString(" $BODY\n")
	fmt.Fprintf(&b, "  NX=%d.,\n", len(stations))
	fmt.Fprintf(&b, "  X(1)=%s,\n", realArray(xs))
	fmt.Fprintf(&b, "  R(1)=%s\n", realArray(rs))
	b.WriteString(" $\n")
	return b.String()
}

func wgplnfBlock(w workflowstate.WingParams, geo tools.SurfaceGeometry) string {
	var b strings.Builder
	b.WriteString(" $WGPLNF\n")
	fmt.Fprintf(&b, "  CHRDR=%s,\n", real(geo.RootChord))
	fmt.Fprintf(&b, "  CHRDTP=%s,\n", real(geo.TipChord))
	fmt.Fprintf(&b, "  SSPN=%s,\n", real(geo.SemiSpan))
	fmt.Fprintf(&b, "  SSPNE=%s,\n", real(geo.SemiSpan))
	fmt.Fprintf(&b, "  CHSTAT=%s,\n", real(0.25))
	fmt.Fprintf(&b, "  TWISTA=%s,\n", real(w.Twist))
	fmt.Fprintf(&b, "  SSPNDD=%s,\n", real(w.Dihedral))
	fmt.Fprintf(&b, "  SAVSI=%s,\n", real(w.SweepAngle))
	fmt.Fprintf(&b, "  SREF=%s\n", real(w.S))
	b.WriteString(" $\n")
	return b.String()
}

func surfaceBlock(name string, geo tools.SurfaceGeometry, sweep float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, " $%s\n", name)
	fmt.Fprintf(&b, "  CHRDR=%s,\n", real(geo.RootChord))
	fmt.Fprintf(&b, "  CHRDTP=%s,\n", real(geo.TipChord))
	fmt.Fprintf(&b, "  SSPN=%s,\n", real(geo.SemiSpan))
	fmt.Fprintf(&b, "  SSPNE=%s,\n", real(geo.SemiSpan))
	fmt.Fprintf(&b, "  CHSTAT=%s,\n", real(0.25))
	fmt.Fprintf(&b, "  SAVSI=%s\n", real(sweep))
	b.WriteString(" $\n")
	return b.String()
}
