package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GoldenNotFoundError is returned when a scenario has no golden counterpart.
// Scenarios without goldens are usually freshly written; the fix is to
// generate the golden and review it.
type GoldenNotFoundError struct {
	Scenario string
	Path     string
}

// Error implements the error interface.
func (e *GoldenNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q has no golden file at %s (run with -update to create it, then review the output)",
		e.Scenario, e.Path)
}

// LoadSuite loads every scenario file (*.yaml, *.yml) in dir, sorted by file
// name. Scenario names must match their file names: golden files are looked
// up by scenario name, so a mismatch would silently compare against the
// wrong golden.
func LoadSuite(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}

	var scenarios []*Scenario
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		scenario, err := LoadScenario(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}

		base := strings.TrimSuffix(entry.Name(), ext)
		if scenario.Name != base {
			return nil, fmt.Errorf("%s: scenario name %q does not match the file name", entry.Name(), scenario.Name)
		}
		if prev, ok := seen[scenario.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", entry.Name(), scenario.Name, prev)
		}
		seen[scenario.Name] = entry.Name()

		scenarios = append(scenarios, scenario)
	}

	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	return scenarios, nil
}

// ValidateGoldens checks that every scenario in the suite has a golden file
// under goldenDir. Run it before executing a suite so a missing golden fails
// loudly instead of surfacing as a confusing goldie diff.
func ValidateGoldens(scenarios []*Scenario, goldenDir string) error {
	for _, scenario := range scenarios {
		path := filepath.Join(goldenDir, scenario.Name+".golden")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return &GoldenNotFoundError{Scenario: scenario.Name, Path: path}
		} else if err != nil {
			return fmt.Errorf("failed to stat golden file %s: %w", path, err)
		}
	}
	return nil
}
