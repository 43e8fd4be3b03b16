// Package source reads entity records from the document store that the
// migration drains. The pipeline depends only on per-kind enumeration; the
// source's query language never leaks past this package.
package source

import (
	"context"
	"time"

	"github.com/juju/mgo/v3/bson"
)

// Connector enumerates each entity kind as a finite sequence of documents.
// Enumeration callbacks run once per document; returning an error stops the
// enumeration and propagates. Implementations check the context between
// documents so cancellation lands on a record boundary, never mid-write.
type Connector interface {
	// Ping verifies the source is reachable before any target write happens.
	Ping(ctx context.Context) error

	EachTextbook(ctx context.Context, fn func(TextbookDoc) error) error
	EachPassageSet(ctx context.Context, fn func(PassageSetDoc) error) error
	EachQuestion(ctx context.Context, fn func(QuestionDoc) error) error
	EachSystemPrompt(ctx context.Context, fn func(SystemPromptDoc) error) error
	EachSystemPromptVersion(ctx context.Context, fn func(SystemPromptVersionDoc) error) error

	// Close releases the underlying connection. Safe to call once after a
	// successful dial, regardless of how the run ended.
	Close() error
}

// TextbookDoc is a textbook document as stored in the source.
type TextbookDoc struct {
	ID        bson.ObjectId `bson:"_id"`
	Title     string        `bson:"title"`
	Publisher string        `bson:"publisher"`
	Subject   string        `bson:"subject"`
	Level     string        `bson:"level"`
	Grade     string        `bson:"grade"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

// SourceID returns the document identity in portable string form.
func (d TextbookDoc) SourceID() string { return d.ID.Hex() }

// PassageSetDoc is a passage set document. TextbookIDs carries the
// many-to-many association that the relationship resolver materializes.
type PassageSetDoc struct {
	ID          bson.ObjectId   `bson:"_id"`
	Title       string          `bson:"title"`
	Passage     string          `bson:"passage"`
	Commentary  string          `bson:"commentary"`
	AccessCode  string          `bson:"accessCode"`
	TextbookIDs []bson.ObjectId `bson:"textbookIds"`
	CreatedAt   time.Time       `bson:"createdAt"`
	UpdatedAt   time.Time       `bson:"updatedAt"`
}

// SourceID returns the document identity in portable string form.
func (d PassageSetDoc) SourceID() string { return d.ID.Hex() }

// TextbookRefs returns the associated textbook identities in portable form.
func (d PassageSetDoc) TextbookRefs() []string {
	refs := make([]string, 0, len(d.TextbookIDs))
	for _, id := range d.TextbookIDs {
		refs = append(refs, id.Hex())
	}
	return refs
}

// QuestionDoc is a question document. PassageSetID may reference a document
// that no longer exists; the importer treats that as an orphan.
type QuestionDoc struct {
	ID           bson.ObjectId `bson:"_id"`
	PassageSetID bson.ObjectId `bson:"passageSetId"`
	Position     int           `bson:"position"`
	Prompt       string        `bson:"prompt"`
	Options      []string      `bson:"options"`
	Answer       string        `bson:"answer"`
	Explanation  string        `bson:"explanation"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
}

// SourceID returns the document identity in portable string form.
func (d QuestionDoc) SourceID() string { return d.ID.Hex() }

// PassageSetRef returns the referenced passage set identity, or "" when the
// document carries no reference.
func (d QuestionDoc) PassageSetRef() string {
	if !d.PassageSetID.Valid() {
		return ""
	}
	return d.PassageSetID.Hex()
}

// SystemPromptDoc is a system prompt document, keyed by its natural key
// rather than a generated identifier.
type SystemPromptDoc struct {
	ID          bson.ObjectId `bson:"_id"`
	Key         string        `bson:"key"`
	Name        string        `bson:"name"`
	Description string        `bson:"description"`
	Content     string        `bson:"content"`
	Active      bool          `bson:"active"`
	Version     int           `bson:"version"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}

// SystemPromptVersionDoc is one append-only history entry for a prompt.
type SystemPromptVersionDoc struct {
	ID        bson.ObjectId `bson:"_id"`
	PromptKey string        `bson:"promptKey"`
	Version   int           `bson:"version"`
	Content   string        `bson:"content"`
	Author    string        `bson:"author"`
	CreatedAt time.Time     `bson:"createdAt"`
}
