package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/mgo/v3/bson"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/backup"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/migrate"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/source"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/testutil"
)

// scenarioBase is the clock base for every scenario run. The migration and
// the backup manager share one stepping clock seeded here, so timestamps in
// reports and backup names are fixed across runs.
var scenarioBase = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

// fixtureTime stamps every seeded document. Content digests cover document
// timestamps, so the value is fixed rather than taken from the wall clock.
var fixtureTime = time.Date(2024, 3, 2, 11, 0, 0, 0, time.UTC)

// Run executes a migration scenario and returns the result.
//
// Each scenario runs against a fresh temporary database for isolation.
// A stepping clock and fixed document timestamps keep results reproducible.
//
// Execution flow:
//  1. Create a throwaway workspace with the target database path
//  2. Build the in-memory source from the fixture
//  3. Run the migration with the scenario's options
//  4. Check the expected terminal state and failure code
//  5. Evaluate assertions against the report and the target database
//
// The migration failing is not an error here: failure scenarios assert on
// exactly that. Run returns an error only when the harness itself cannot
// execute the scenario.
func Run(scenario *Scenario) (*Result, error) {
	// Scenarios built in code bypass LoadScenario, so validate here too:
	// connector() trusts identifiers to be well formed.
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	dir, err := os.MkdirTemp("", "harness-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	dbPath := filepath.Join(dir, "target.db")
	src := scenario.Source.connector()
	clock := testutil.NewClock(scenarioBase, time.Second)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dial := func(ctx context.Context) (source.Connector, error) { return src, nil }
	opts := []migrate.Option{
		migrate.WithLogger(log),
		migrate.WithClock(clock.Now),
		migrate.WithChecksums(scenario.Options.Checksums),
	}
	if scenario.Options.BatchSize > 0 {
		opts = append(opts, migrate.WithBatchSize(scenario.Options.BatchSize))
	}
	if scenario.Options.Snapshots {
		snap := backup.NewManager(dbPath, filepath.Join(dir, "backups"), "",
			backup.WithClock(clock.Now),
			backup.WithLogger(log))
		opts = append(opts, migrate.WithSnapshots(snap))
	}

	report, runErr := migrate.New(dial, dbPath, opts...).Run(context.Background())

	result := NewResult(report)
	checkExpectation(scenario.Expect, runErr, result)

	// Assertions inspect the target database after the run. A scenario that
	// fails before the first write still gets a readable (empty) database.
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open target for assertions: %w", err)
	}
	defer st.Close()

	actx := &AssertionContext{
		Ctx:    context.Background(),
		Store:  st,
		Report: report,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// checkExpectation compares the run outcome against the scenario's expect
// block and records any divergence on the result.
func checkExpectation(expect Expectation, runErr error, result *Result) {
	switch expect.State {
	case ExpectSucceeded:
		if runErr != nil {
			result.AddError(fmt.Sprintf("expected migration to succeed, got: %v", runErr))
			return
		}
		if result.Report.State != migrate.StateSucceeded {
			result.AddError(fmt.Sprintf("expected state %s, got %s", migrate.StateSucceeded, result.Report.State))
		}

	case ExpectFailed:
		if runErr == nil {
			result.AddError("expected migration to fail, it succeeded")
			return
		}
		if expect.FailureCode == "" {
			return
		}
		var me *migrate.MigrationError
		if !errors.As(runErr, &me) {
			result.AddError(fmt.Sprintf("expected failure code %s, got unclassified error: %v", expect.FailureCode, runErr))
			return
		}
		if string(me.Code) != expect.FailureCode {
			result.AddError(fmt.Sprintf("expected failure code %s, got %s: %v", expect.FailureCode, me.Code, runErr))
		}
	}
}

// connector builds the in-memory source connector for the fixture.
func (f *Fixture) connector() *source.Memory {
	src := &source.Memory{}

	for _, seed := range f.Textbooks {
		src.Textbooks = append(src.Textbooks, source.TextbookDoc{
			ID:        bson.ObjectIdHex(seed.ID),
			Title:     seed.Title,
			Publisher: seed.Publisher,
			Subject:   seed.Subject,
			Level:     seed.Level,
			Grade:     seed.Grade,
			CreatedAt: fixtureTime,
			UpdatedAt: fixtureTime,
		})
	}

	for _, seed := range f.PassageSets {
		refs := make([]bson.ObjectId, 0, len(seed.TextbookIDs))
		for _, ref := range seed.TextbookIDs {
			refs = append(refs, bson.ObjectIdHex(ref))
		}
		src.PassageSets = append(src.PassageSets, source.PassageSetDoc{
			ID:          bson.ObjectIdHex(seed.ID),
			Title:       seed.Title,
			Passage:     seed.Passage,
			Commentary:  seed.Commentary,
			AccessCode:  seed.AccessCode,
			TextbookIDs: refs,
			CreatedAt:   fixtureTime,
			UpdatedAt:   fixtureTime,
		})
	}

	for _, seed := range f.Questions {
		var psID bson.ObjectId
		if seed.PassageSetID != "" {
			psID = bson.ObjectIdHex(seed.PassageSetID)
		}
		src.Questions = append(src.Questions, source.QuestionDoc{
			ID:           bson.ObjectIdHex(seed.ID),
			PassageSetID: psID,
			Position:     seed.Position,
			Prompt:       seed.Prompt,
			Options:      seed.Options,
			Answer:       seed.Answer,
			Explanation:  seed.Explanation,
			CreatedAt:    fixtureTime,
			UpdatedAt:    fixtureTime,
		})
	}

	for _, seed := range f.SystemPrompts {
		src.SystemPrompts = append(src.SystemPrompts, source.SystemPromptDoc{
			ID:          bson.ObjectIdHex(seed.ID),
			Key:         seed.Key,
			Name:        seed.Name,
			Description: seed.Description,
			Content:     seed.Content,
			Active:      seed.Active,
			Version:     seed.Version,
			CreatedAt:   fixtureTime,
			UpdatedAt:   fixtureTime,
		})
	}

	for _, seed := range f.SystemPromptVersions {
		src.SystemPromptVersions = append(src.SystemPromptVersions, source.SystemPromptVersionDoc{
			ID:        bson.ObjectIdHex(seed.ID),
			PromptKey: seed.PromptKey,
			Version:   seed.Version,
			Content:   seed.Content,
			Author:    seed.Author,
			CreatedAt: fixtureTime,
		})
	}

	return src
}
