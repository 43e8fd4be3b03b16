// Package entity defines the target-side record types the migration writes
// into the SQLite store, plus the text normalization and content-digest
// helpers shared by the importer and the integrity verifier.
package entity

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// Kind names one of the migrated record types. Values double as the target
// table names so count queries and log lines stay consistent.
type Kind string

const (
	KindTextbook            Kind = "textbooks"
	KindPassageSet          Kind = "passage_sets"
	KindQuestion            Kind = "questions"
	KindSystemPrompt        Kind = "system_prompts"
	KindSystemPromptVersion Kind = "system_prompt_versions"
)

// ImportOrder is the fixed order entity kinds are imported in. Textbooks and
// passage sets precede questions; prompts precede their version history.
var ImportOrder = []Kind{
	KindTextbook,
	KindPassageSet,
	KindQuestion,
	KindSystemPrompt,
	KindSystemPromptVersion,
}

// Textbook is a published textbook a passage set can be associated with.
type Textbook struct {
	ID        string
	Title     string
	Publisher string
	Subject   string
	Level     string
	Grade     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PassageSet is a reading passage with commentary, reachable by students
// through its unique access code.
type PassageSet struct {
	ID         string
	Title      string
	Passage    string
	Commentary string
	AccessCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Question belongs to exactly one passage set. Options is an ordered list;
// the store serializes it into a single encoded text column.
type Question struct {
	ID           string
	PassageSetID string
	Position     int
	Prompt       string
	Options      []string
	Answer       string
	Explanation  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SystemPrompt is keyed by its natural key rather than a generated
// identifier; the migration never remaps it.
type SystemPrompt struct {
	Key         string
	Name        string
	Description string
	Content     string
	Active      bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SystemPromptVersion is an append-only historical snapshot of a prompt's
// content at a given version.
type SystemPromptVersion struct {
	PromptKey string
	Version   int
	Content   string
	Author    string
	CreatedAt time.Time
}

// TextbookPassageSetLink is a junction record. Its identity is the pair of
// foreign keys; it has no lifecycle of its own.
type TextbookPassageSetLink struct {
	TextbookID   string
	PassageSetID string
}

// NormalizeText applies Unicode NFC normalization. All text coming out of the
// source store passes through here before it is written, so equality checks
// (notably access-code uniqueness over Korean input) do not depend on how the
// source composed its codepoints.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}

// Normalized returns a copy with all text fields NFC-normalized.
func (t Textbook) Normalized() Textbook {
	t.Title = NormalizeText(t.Title)
	t.Publisher = NormalizeText(t.Publisher)
	t.Subject = NormalizeText(t.Subject)
	t.Level = NormalizeText(t.Level)
	t.Grade = NormalizeText(t.Grade)
	return t
}

// Normalized returns a copy with all text fields NFC-normalized.
func (p PassageSet) Normalized() PassageSet {
	p.Title = NormalizeText(p.Title)
	p.Passage = NormalizeText(p.Passage)
	p.Commentary = NormalizeText(p.Commentary)
	p.AccessCode = NormalizeText(p.AccessCode)
	return p
}

// Normalized returns a copy with all text fields NFC-normalized. Options are
// copied, never mutated in place.
func (q Question) Normalized() Question {
	q.Prompt = NormalizeText(q.Prompt)
	q.Answer = NormalizeText(q.Answer)
	q.Explanation = NormalizeText(q.Explanation)
	if q.Options != nil {
		opts := make([]string, len(q.Options))
		for i, o := range q.Options {
			opts[i] = NormalizeText(o)
		}
		q.Options = opts
	}
	return q
}

// Normalized returns a copy with all text fields NFC-normalized.
func (sp SystemPrompt) Normalized() SystemPrompt {
	sp.Key = NormalizeText(sp.Key)
	sp.Name = NormalizeText(sp.Name)
	sp.Description = NormalizeText(sp.Description)
	sp.Content = NormalizeText(sp.Content)
	return sp
}

// Normalized returns a copy with all text fields NFC-normalized.
func (v SystemPromptVersion) Normalized() SystemPromptVersion {
	v.PromptKey = NormalizeText(v.PromptKey)
	v.Content = NormalizeText(v.Content)
	v.Author = NormalizeText(v.Author)
	return v
}
