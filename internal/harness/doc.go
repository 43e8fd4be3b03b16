// Package harness provides conformance testing for the migration pipeline.
//
// The harness loads scenario files that describe a legacy document export,
// runs the real migration into a throwaway SQLite database, and validates
// the outcome: the report, the rows that landed, and the records that were
// skipped. Scenarios double as executable documentation of how dirty exports
// behave.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	source:
//	  textbooks:
//	    - id: "000000000000000000000001"
//	      title: 수능특강 영어
//	  passage_sets:
//	    - id: "000000000000000000000010"
//	      title: Urban Farming
//	      access_code: A1B2C3
//	      textbook_ids: ["000000000000000000000001"]
//	options:
//	  checksums: true
//	  snapshots: false
//	expect:
//	  state: succeeded
//	assertions:
//	  - type: row_count
//	    kind: textbooks
//	    count: 1
//	  - type: final_state
//	    table: textbooks
//	    where: { title: "수능특강 영어" }
//	    expect: { publisher: "EBS" }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - stats: verifies per-kind read/imported/skipped counters on the report
//   - row_count: verifies the number of rows of a kind in the target database
//   - link_count: verifies the number of textbook/passage-set junction rows
//   - skipped_record: verifies a specific record was skipped with its missing
//     reference
//   - final_state: queries a target table and verifies expected column values
//
// link_count exists because count verification inside the pipeline covers
// entity kinds only; junction rows are checked here instead.
//
// # Determinism
//
// Every run uses a fixed clock (one-second steps from a fixed base), a fresh
// temporary database, and fixed document timestamps. Reports rendered from
// the same scenario are therefore byte-identical, which makes them suitable
// for golden comparison.
//
// # Golden Files
//
// RunWithGolden compares the rendered report against
// testdata/golden/{name}.golden. To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
