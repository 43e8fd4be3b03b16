package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/migrate"
)

// RunWithGolden executes a scenario and compares the rendered report against
// a golden file. The golden file is stored in
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Reports render deterministically (fixed clock, fixed document timestamps,
// kinds in import order), so golden files pin the operator-facing output of
// each scenario. Expectation and assertion failures are recorded on the
// returned result rather than raised here; callers check result.Pass.
//
// Returns an error if the harness itself cannot execute the scenario.
// Test failure (via goldie) occurs if the report doesn't match the golden
// file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result.Report)

	return result, nil
}

// AssertGolden compares a report's rendered text against a golden file.
// This is useful when you've already run a scenario and want to compare
// the report against a golden file without re-running.
func AssertGolden(t *testing.T, name string, report *migrate.Report) {
	t.Helper()

	var buf bytes.Buffer
	report.RenderText(&buf)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}
