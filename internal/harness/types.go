package harness

import "github.com/jjhmonolith/yurichatbot-localserver/internal/migrate"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if the expectation and all assertions match.
	Pass bool `json:"pass"`

	// Report is the migration report for the run. A failed migration still
	// carries everything that happened before the failure, so assertions
	// and golden comparison work for failure scenarios too.
	Report *migrate.Report `json:"report"`

	// Errors contains expectation and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result for the given report.
// Used as the starting point for scenario evaluation.
func NewResult(report *migrate.Report) *Result {
	return &Result{
		Pass:   true,
		Report: report,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
