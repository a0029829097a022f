package driver

import (
	"encoding/json"
	"fmt"

	"strata/internal/observ"
)

type timingPayload struct {
	Kind    string               `json:"kind"`
	Module  string               `json:"module,omitempty"`
	Session string               `json:"session,omitempty"`
	TotalMS float64              `json:"total_ms"`
	Phases  []observ.PhaseReport `json:"phases"`
}

// TimingsJSON renders the timer of r as one JSON object.
func TimingsJSON(r *Result) ([]byte, error) {
	if r == nil || r.Timer == nil {
		return nil, fmt.Errorf("no timings recorded")
	}
	rep := r.Timer.Report()
	return json.Marshal(timingPayload{
		Kind:    "compile",
		Module:  r.Module,
		Session: r.SessionID,
		TotalMS: rep.TotalMS,
		Phases:  rep.Phases,
	})
}

// TimingsText renders the timer of r as a human-readable summary.
func TimingsText(r *Result) string {
	if r == nil || r.Timer == nil {
		return ""
	}
	return fmt.Sprintf("timings %s:\n%s", r.Module, r.Timer.Summary())
}
