package migrate

import (
	"fmt"
	"io"
	"time"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
)

// KindStats counts what happened to one entity kind during import.
type KindStats struct {
	Kind     entity.Kind `json:"kind"`
	Read     int64       `json:"read"`
	Imported int64       `json:"imported"`
	Skipped  int64       `json:"skipped"`
}

// SkipNote records one skipped record with enough detail to reconstruct why
// a later count check failed.
type SkipNote struct {
	Kind       entity.Kind `json:"kind"`
	SourceID   string      `json:"source_id"`
	MissingRef string      `json:"missing_ref"`
}

// VerifyResult is the reconciliation outcome for one entity kind.
type VerifyResult struct {
	Kind        entity.Kind `json:"kind"`
	SourceCount int64       `json:"source_count"`
	TargetCount int64       `json:"target_count"`
	CountMatch  bool        `json:"count_match"`

	// Digest fields are populated only when checksum verification ran.
	SourceChecksum string `json:"source_checksum,omitempty"`
	TargetChecksum string `json:"target_checksum,omitempty"`
	ChecksumMatch  bool   `json:"checksum_match,omitempty"`
}

// Report is the full outcome of one migration run. It is populated
// incrementally as the run advances, so a failed run still carries everything
// that happened before the failure.
type Report struct {
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Kinds []*KindStats `json:"kinds"`
	Skips []SkipNote   `json:"skips,omitempty"`

	LinksCreated  int64 `json:"links_created"`
	LinksExisting int64 `json:"links_existing"`
	LinkWarnings  int64 `json:"link_warnings"`

	Verification []VerifyResult `json:"verification,omitempty"`

	// BackupName is the pre-migration safety backup, when one was taken.
	BackupName string `json:"backup_name,omitempty"`
	// RolledBack reports whether the target was restored from BackupName
	// after a failure.
	RolledBack bool `json:"rolled_back,omitempty"`

	Failure string `json:"failure,omitempty"`
}

func newReport() *Report {
	r := &Report{State: StateNotStarted}
	for _, kind := range entity.ImportOrder {
		r.Kinds = append(r.Kinds, &KindStats{Kind: kind})
	}
	return r
}

// stats returns the counters for a kind. Kinds are fixed at construction, so
// a miss is a programming error.
func (r *Report) stats(kind entity.Kind) *KindStats {
	for _, ks := range r.Kinds {
		if ks.Kind == kind {
			return ks
		}
	}
	panic(fmt.Sprintf("no stats slot for kind %q", kind))
}

// TotalImported returns the number of records imported across all kinds.
func (r *Report) TotalImported() int64 {
	var n int64
	for _, ks := range r.Kinds {
		n += ks.Imported
	}
	return n
}

// TotalSkipped returns the number of records skipped across all kinds.
func (r *Report) TotalSkipped() int64 {
	var n int64
	for _, ks := range r.Kinds {
		n += ks.Skipped
	}
	return n
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RenderText writes the human-readable report. Output is deterministic for a
// given report: kinds appear in import order and skips in occurrence order.
func (r *Report) RenderText(w io.Writer) {
	fmt.Fprintf(w, "Migration: %s\n", r.State)
	fmt.Fprintf(w, "Duration: %s\n", r.Duration())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Imported ===")
	for _, ks := range r.Kinds {
		fmt.Fprintf(w, "  %-22s read=%d imported=%d skipped=%d\n", ks.Kind, ks.Read, ks.Imported, ks.Skipped)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Relationships ===")
	fmt.Fprintf(w, "  Links created:  %d\n", r.LinksCreated)
	fmt.Fprintf(w, "  Links existing: %d\n", r.LinksExisting)
	fmt.Fprintf(w, "  Link warnings:  %d\n", r.LinkWarnings)

	if len(r.Skips) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Skipped Records ===")
		for _, skip := range r.Skips {
			fmt.Fprintf(w, "  %s %s (missing ref %s)\n", skip.Kind, skip.SourceID, skip.MissingRef)
		}
	}

	if len(r.Verification) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Verification ===")
		for _, v := range r.Verification {
			status := "ok"
			if !v.CountMatch {
				status = "MISMATCH"
			}
			fmt.Fprintf(w, "  %-22s source=%d target=%d %s\n", v.Kind, v.SourceCount, v.TargetCount, status)
			if v.SourceChecksum != "" {
				checksumStatus := "ok"
				if !v.ChecksumMatch {
					checksumStatus = "MISMATCH"
				}
				fmt.Fprintf(w, "  %-22s checksum %s\n", "", checksumStatus)
			}
		}
	}

	if r.BackupName != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Pre-migration backup: %s\n", r.BackupName)
		if r.RolledBack {
			fmt.Fprintln(w, "Target rolled back to pre-migration backup.")
		}
	}

	if r.Failure != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Failure: %s\n", r.Failure)
	}
}
