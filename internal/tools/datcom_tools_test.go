package tools

import (
	"context"
	"strings"
	"testing"
)

func TestGenerateFltconMatrixHandler_PointCount(t *testing.T) {
	// S1 scenario matrix: 1 Mach, 1 altitude, 7 alphas -> NMACH*NALT*NALPHA = 7.
	out, err := generateFltconMatrixHandler(context.Background(), `{"machs":[0.8],"alts":[10000],"alpha0":-2,"alpha1":10,"dalpha":2,"weight":40000}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"NALPHA":7`) {
		t.Errorf("expected NALPHA=7 in output, got: %s", out)
	}
	if !strings.Contains(out, `"NMACH":1`) {
		t.Errorf("expected NMACH=1 in output, got: %s", out)
	}
}

func TestGenerateFltconMatrixHandler_RejectsOverLimit(t *testing.T) {
	machs := `[0.1,0.2,0.3,0.4,0.5,0.6,0.7,0.8,0.9,1.0,1.1,1.2,1.3,1.4,1.5,1.6,1.7,1.8,1.9,2.0,2.1]`
	_, err := generateFltconMatrixHandler(context.Background(), `{"machs":`+machs+`,"alts":[1000,2000,3000,4000,5000],"alpha0":0,"alpha1":20,"dalpha":1,"weight":1000}`)
	if err == nil {
		t.Fatal("expected an error when analysis points exceed 400")
	}
}

func TestValidateParameters_DetectsFailures(t *testing.T) {
	failures := ValidateParameters(map[string]interface{}{
		"SREF":   -1.0,
		"ASPECT": 8.0,
		"TAPER":  0.5,
	})
	if len(failures) == 0 {
		t.Fatal("expected at least one failure for negative SREF")
	}
}

func TestValidateParameters_PassesCleanRecord(t *testing.T) {
	failures := ValidateParameters(map[string]interface{}{
		"SREF":   100.0,
		"ASPECT": 8.0,
		"TAPER":  0.5,
		"NMACH":  1.0,
		"NALT":   1.0,
		"NALPHA": 7.0,
		"WT":     40000.0,
	})
	if len(failures) != 0 {
		t.Errorf("expected no failures, got %v", failures)
	}
}

func TestConvertWingHandler_RejectsInvalidTaper(t *testing.T) {
	_, err := convertWingHandler(context.Background(), `{"S":100,"A":8,"lambda":1.5,"sweep":25}`)
	if err == nil {
		t.Fatal("expected error for taper ratio outside (0, 1]")
	}
}

func TestDefineBodyGeometryHandler_StationCount(t *testing.T) {
	out, err := defineBodyGeometryHandler(context.Background(), `{"length":63,"max_diameter":6,"n_stations":5}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"NX":5`) {
		t.Errorf("expected NX=5 in output, got: %s", out)
	}
}
