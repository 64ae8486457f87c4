package harness

import "github.com/roach88/screentrace/internal/report"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when the run behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	RunID string `json:"run_id,omitempty"`

	// Report is nil when the run failed (expected or not).
	Report *report.Report `json:"report,omitempty"`

	// Errors lists assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
