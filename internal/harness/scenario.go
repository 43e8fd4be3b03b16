package harness

import (
	"bytes"
	"fmt"
	"os"

	"github.com/juju/mgo/v3/bson"
	"gopkg.in/yaml.v3"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/migrate"
)

// Scenario defines a migration conformance scenario. A scenario describes a
// legacy document export, runs the full migration against it, and asserts on
// the report and on the rows that reached the target database.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file
	// name, so suites require it to match the scenario file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Source is the legacy document export the migration reads from.
	// An empty source is valid: migrating nothing succeeds.
	Source Fixture `yaml:"source,omitempty"`

	// Options toggles optional pipeline behavior for this run.
	Options RunOptions `yaml:"options,omitempty"`

	// Expect states the required overall outcome.
	Expect Expectation `yaml:"expect"`

	// Assertions validate the final report and target state.
	// Supported types: stats, row_count, link_count, skipped_record,
	// final_state.
	Assertions []Assertion `yaml:"assertions"`
}

// Fixture is the in-memory legacy export a scenario migrates from. Documents
// carry fixed timestamps so runs stay deterministic; seeds only describe the
// fields that vary between scenarios.
type Fixture struct {
	Textbooks            []TextbookSeed      `yaml:"textbooks,omitempty"`
	PassageSets          []PassageSetSeed    `yaml:"passage_sets,omitempty"`
	Questions            []QuestionSeed      `yaml:"questions,omitempty"`
	SystemPrompts        []SystemPromptSeed  `yaml:"system_prompts,omitempty"`
	SystemPromptVersions []PromptVersionSeed `yaml:"system_prompt_versions,omitempty"`
}

// TextbookSeed seeds one textbook document.
type TextbookSeed struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Publisher string `yaml:"publisher,omitempty"`
	Subject   string `yaml:"subject,omitempty"`
	Level     string `yaml:"level,omitempty"`
	Grade     string `yaml:"grade,omitempty"`
}

// PassageSetSeed seeds one passage set document. TextbookIDs may reference
// textbooks absent from the fixture; the migration records those as link
// warnings rather than failing.
type PassageSetSeed struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Passage     string   `yaml:"passage,omitempty"`
	Commentary  string   `yaml:"commentary,omitempty"`
	AccessCode  string   `yaml:"access_code,omitempty"`
	TextbookIDs []string `yaml:"textbook_ids,omitempty"`
}

// QuestionSeed seeds one question document. A PassageSetID that names no
// passage set in the fixture produces an orphan: the question is skipped and
// count verification fails the run.
type QuestionSeed struct {
	ID           string   `yaml:"id"`
	PassageSetID string   `yaml:"passage_set_id,omitempty"`
	Position     int      `yaml:"position,omitempty"`
	Prompt       string   `yaml:"prompt,omitempty"`
	Options      []string `yaml:"options,omitempty"`
	Answer       string   `yaml:"answer,omitempty"`
	Explanation  string   `yaml:"explanation,omitempty"`
}

// SystemPromptSeed seeds one system prompt document.
type SystemPromptSeed struct {
	ID          string `yaml:"id"`
	Key         string `yaml:"key"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Content     string `yaml:"content,omitempty"`
	Active      bool   `yaml:"active,omitempty"`
	Version     int    `yaml:"version,omitempty"`
}

// PromptVersionSeed seeds one prompt history entry.
type PromptVersionSeed struct {
	ID        string `yaml:"id"`
	PromptKey string `yaml:"prompt_key"`
	Version   int    `yaml:"version,omitempty"`
	Content   string `yaml:"content,omitempty"`
	Author    string `yaml:"author,omitempty"`
}

// RunOptions toggles optional pipeline behavior for a scenario run.
type RunOptions struct {
	// Checksums enables content digest verification.
	Checksums bool `yaml:"checksums,omitempty"`

	// Snapshots enables the pre-migration backup and failure rollback. The
	// backup manager shares the scenario clock, so backup names are fixed.
	Snapshots bool `yaml:"snapshots,omitempty"`

	// BatchSize overrides the write batch size when positive.
	BatchSize int `yaml:"batch_size,omitempty"`
}

// Expectation states the required overall outcome of the run.
type Expectation struct {
	// State is the required terminal state: "succeeded" or "failed".
	State string `yaml:"state"`

	// FailureCode is the required migration error code when State is
	// "failed" (e.g. "COUNT_MISMATCH"). Optional: when empty, any failure
	// satisfies the expectation.
	FailureCode string `yaml:"failure_code,omitempty"`
}

// Expected terminal states.
const (
	ExpectSucceeded = "succeeded"
	ExpectFailed    = "failed"
)

// Assertion validates one aspect of the report or the final target state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "stats": check per-kind read/imported/skipped counters
	// - "row_count": check rows of a kind in the target database
	// - "link_count": check textbook/passage-set junction rows
	// - "skipped_record": check a record was skipped with its missing ref
	// - "final_state": query a table and verify expected values
	Type string `yaml:"type"`

	// Kind is the entity kind (used by stats, row_count, skipped_record).
	Kind string `yaml:"kind,omitempty"`

	// Read, Imported and Skipped are the expected counters (used by stats).
	Read     int `yaml:"read,omitempty"`
	Imported int `yaml:"imported,omitempty"`
	Skipped  int `yaml:"skipped,omitempty"`

	// Count is the expected number of rows (used by row_count, link_count).
	Count int `yaml:"count,omitempty"`

	// ID is the source identifier of the skipped record (used by
	// skipped_record).
	ID string `yaml:"id,omitempty"`

	// MissingRef is the reference the skipped record pointed at (used by
	// skipped_record). Optional: when empty, any missing ref matches.
	MissingRef string `yaml:"missing_ref,omitempty"`

	// Table is the target table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertStats         = "stats"
	AssertRowCount      = "row_count"
	AssertLinkCount     = "link_count"
	AssertSkippedRecord = "skipped_record"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like
	// "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// knownFailureCodes lists the migration error codes an expectation may name.
var knownFailureCodes = map[string]bool{
	string(migrate.ErrCodeConnectionFailed): true,
	string(migrate.ErrCodeWriteFailed):      true,
	string(migrate.ErrCodeCountMismatch):    true,
	string(migrate.ErrCodeChecksumMismatch): true,
	string(migrate.ErrCodeCancelled):        true,
	string(migrate.ErrCodeBackupFailed):     true,
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Expect.State {
	case ExpectSucceeded, ExpectFailed:
	case "":
		return fmt.Errorf("expect.state is required")
	default:
		return fmt.Errorf("expect.state must be %q or %q, got %q", ExpectSucceeded, ExpectFailed, s.Expect.State)
	}

	if s.Expect.FailureCode != "" {
		if s.Expect.State != ExpectFailed {
			return fmt.Errorf("expect.failure_code is only valid when expect.state is %q", ExpectFailed)
		}
		if !knownFailureCodes[s.Expect.FailureCode] {
			return fmt.Errorf("expect.failure_code: unknown code %q", s.Expect.FailureCode)
		}
	}

	if s.Options.BatchSize < 0 {
		return fmt.Errorf("options.batch_size must be non-negative")
	}

	if err := validateFixture(&s.Source); err != nil {
		return err
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateFixture checks that every document identifier is well formed.
// References may name documents absent from the fixture (that is how dirty
// exports are modeled), but they still have to be valid object ids.
func validateFixture(f *Fixture) error {
	for i, seed := range f.Textbooks {
		if err := validateSeedID(fmt.Sprintf("textbooks[%d].id", i), seed.ID); err != nil {
			return err
		}
	}
	for i, seed := range f.PassageSets {
		if err := validateSeedID(fmt.Sprintf("passage_sets[%d].id", i), seed.ID); err != nil {
			return err
		}
		for j, ref := range seed.TextbookIDs {
			if err := validateSeedID(fmt.Sprintf("passage_sets[%d].textbook_ids[%d]", i, j), ref); err != nil {
				return err
			}
		}
	}
	for i, seed := range f.Questions {
		if err := validateSeedID(fmt.Sprintf("questions[%d].id", i), seed.ID); err != nil {
			return err
		}
		// An absent passage_set_id models a document with no reference at
		// all, so only non-empty values are checked.
		if seed.PassageSetID != "" && !bson.IsObjectIdHex(seed.PassageSetID) {
			return fmt.Errorf("questions[%d].passage_set_id: %q is not a valid object id", i, seed.PassageSetID)
		}
	}
	for i, seed := range f.SystemPrompts {
		if err := validateSeedID(fmt.Sprintf("system_prompts[%d].id", i), seed.ID); err != nil {
			return err
		}
		if seed.Key == "" {
			return fmt.Errorf("system_prompts[%d]: key is required", i)
		}
	}
	for i, seed := range f.SystemPromptVersions {
		if err := validateSeedID(fmt.Sprintf("system_prompt_versions[%d].id", i), seed.ID); err != nil {
			return err
		}
		if seed.PromptKey == "" {
			return fmt.Errorf("system_prompt_versions[%d]: prompt_key is required", i)
		}
	}
	return nil
}

func validateSeedID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s: id is required", field)
	}
	if !bson.IsObjectIdHex(id) {
		return fmt.Errorf("%s: %q is not a valid object id", field, id)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStats:
		if err := validateAssertionKind(index, a.Kind); err != nil {
			return err
		}
		if a.Read < 0 || a.Imported < 0 || a.Skipped < 0 {
			return fmt.Errorf("assertions[%d]: counters must be non-negative for stats", index)
		}
	case AssertRowCount:
		if err := validateAssertionKind(index, a.Kind); err != nil {
			return err
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertLinkCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for link_count", index)
		}
	case AssertSkippedRecord:
		if err := validateAssertionKind(index, a.Kind); err != nil {
			return err
		}
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for skipped_record", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validateAssertionKind(index int, kind string) error {
	if kind == "" {
		return fmt.Errorf("assertions[%d]: kind is required", index)
	}
	for _, known := range entity.ImportOrder {
		if entity.Kind(kind) == known {
			return nil
		}
	}
	return fmt.Errorf("assertions[%d]: unknown kind %q", index, kind)
}
