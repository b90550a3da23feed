// Package reporter renders a driver run's summary as text or JSON,
// adapted from internal/reporter's summary-struct-to-multiple-renderers
// shape (there: ComparisonResult -> HTML/text; here: driver.RunSummary ->
// text table/JSON).
package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/jpequegn/parallelcache/internal/driver"
)

const textTemplate = `parallelcache run summary
  batches dispatched     : {{.BatchesDispatched}}
  calls registered        : {{.CallsRegistered}}
  cache hits at capture    : {{.CacheHitsAtCapture}}
  capture phase duration   : {{.CaptureDuration}}
  compute phase duration   : {{.ComputeDuration}}
  replay phase duration    : {{.ReplayDuration}}
  total                    : {{.Total}}
`

// Report is the rendering-friendly projection of a driver.RunSummary,
// adding a precomputed total the template can't derive on its own.
type Report struct {
	driver.RunSummary
	Total time.Duration
}

// FromSummary builds a Report from a driver's run summary.
func FromSummary(s driver.RunSummary) Report {
	return Report{
		RunSummary: s,
		Total:      s.CaptureDuration + s.ComputeDuration + s.ReplayDuration,
	}
}

// RenderText renders the report as a short human-readable table,
// adapted from reporter's text-summary rendering path.
func RenderText(r Report) (string, error) {
	tmpl, err := template.New("summary").Parse(textTemplate)
	if err != nil {
		return "", fmt.Errorf("reporter: parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("reporter: render text: %w", err)
	}
	return buf.String(), nil
}

// RenderJSON renders the report as indented JSON, for machine consumers.
func RenderJSON(r Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("reporter: render json: %w", err)
	}
	return data, nil
}
