package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/idmap"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/source"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

// importer drains the source into the target store one kind at a time.
// Records accumulate into bounded batches; each batch lands in its own
// transaction, so memory use stays flat regardless of collection size.
type importer struct {
	src           source.Connector
	st            *store.Store
	mapper        *idmap.Mapper
	log           *slog.Logger
	batchSize     int
	progressEvery int
	report        *Report

	// digests collects per-record content digests for checksum
	// verification. nil when checksum mode is off.
	digests *entity.DigestSet

	// promptKeys tracks imported prompt natural keys (NFC form) so version
	// history entries can detect a missing parent.
	promptKeys map[string]bool
}

// run imports every kind in dependency order. Textbooks and passage sets
// precede questions; prompts precede their version history.
func (im *importer) run(ctx context.Context) error {
	for _, kind := range entity.ImportOrder {
		im.log.Info("importing", "kind", kind)

		var err error
		switch kind {
		case entity.KindTextbook:
			err = im.importTextbooks(ctx)
		case entity.KindPassageSet:
			err = im.importPassageSets(ctx)
		case entity.KindQuestion:
			err = im.importQuestions(ctx)
		case entity.KindSystemPrompt:
			err = im.importSystemPrompts(ctx)
		case entity.KindSystemPromptVersion:
			err = im.importSystemPromptVersions(ctx)
		default:
			err = fmt.Errorf("no importer for kind %q", kind)
		}
		if err != nil {
			return err
		}

		stats := im.report.stats(kind)
		im.log.Info("kind imported", "kind", kind, "read", stats.Read, "imported", stats.Imported, "skipped", stats.Skipped)
	}
	return nil
}

func (im *importer) importTextbooks(ctx context.Context) error {
	stats := im.report.stats(entity.KindTextbook)
	batch := make([]entity.Textbook, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.st.InsertTextbooks(ctx, batch); err != nil {
			return NewWriteError(entity.KindTextbook, err)
		}
		stats.Imported += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	err := im.src.EachTextbook(ctx, func(doc source.TextbookDoc) error {
		stats.Read++
		targetID, err := im.mapper.Assign(entity.KindTextbook, doc.SourceID())
		if err != nil {
			return fmt.Errorf("import textbooks: %w", err)
		}

		tb := entity.Textbook{
			ID:        targetID,
			Title:     doc.Title,
			Publisher: doc.Publisher,
			Subject:   doc.Subject,
			Level:     doc.Level,
			Grade:     doc.Grade,
			CreatedAt: doc.CreatedAt.UTC(),
			UpdatedAt: doc.UpdatedAt.UTC(),
		}.Normalized()

		if im.digests != nil {
			im.digests.Add(entity.KindTextbook, tb.ContentDigest())
		}
		batch = append(batch, tb)
		im.progress(entity.KindTextbook, stats.Read)

		if len(batch) >= im.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (im *importer) importPassageSets(ctx context.Context) error {
	stats := im.report.stats(entity.KindPassageSet)
	batch := make([]entity.PassageSet, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.st.InsertPassageSets(ctx, batch); err != nil {
			return NewWriteError(entity.KindPassageSet, err)
		}
		stats.Imported += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	err := im.src.EachPassageSet(ctx, func(doc source.PassageSetDoc) error {
		stats.Read++
		targetID, err := im.mapper.Assign(entity.KindPassageSet, doc.SourceID())
		if err != nil {
			return fmt.Errorf("import passage sets: %w", err)
		}

		ps := entity.PassageSet{
			ID:         targetID,
			Title:      doc.Title,
			Passage:    doc.Passage,
			Commentary: doc.Commentary,
			AccessCode: doc.AccessCode,
			CreatedAt:  doc.CreatedAt.UTC(),
			UpdatedAt:  doc.UpdatedAt.UTC(),
		}.Normalized()

		if im.digests != nil {
			im.digests.Add(entity.KindPassageSet, ps.ContentDigest())
		}
		batch = append(batch, ps)
		im.progress(entity.KindPassageSet, stats.Read)

		if len(batch) >= im.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (im *importer) importQuestions(ctx context.Context) error {
	stats := im.report.stats(entity.KindQuestion)
	batch := make([]entity.Question, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.st.InsertQuestions(ctx, batch); err != nil {
			return NewWriteError(entity.KindQuestion, err)
		}
		stats.Imported += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	err := im.src.EachQuestion(ctx, func(doc source.QuestionDoc) error {
		stats.Read++

		// A question whose passage set was never imported is an orphan:
		// skipped with a warning, never a hard stop. Count verification
		// surfaces the discrepancy at the end of the run.
		ref := doc.PassageSetRef()
		parentID, ok := im.mapper.Resolve(entity.KindPassageSet, ref)
		if !ok {
			im.skip(stats, entity.KindQuestion, doc.SourceID(), ref)
			return nil
		}

		targetID, err := im.mapper.Assign(entity.KindQuestion, doc.SourceID())
		if err != nil {
			return fmt.Errorf("import questions: %w", err)
		}

		q := entity.Question{
			ID:           targetID,
			PassageSetID: parentID,
			Position:     doc.Position,
			Prompt:       doc.Prompt,
			Options:      doc.Options,
			Answer:       doc.Answer,
			Explanation:  doc.Explanation,
			CreatedAt:    doc.CreatedAt.UTC(),
			UpdatedAt:    doc.UpdatedAt.UTC(),
		}.Normalized()

		if im.digests != nil {
			im.digests.Add(entity.KindQuestion, q.ContentDigest())
		}
		batch = append(batch, q)
		im.progress(entity.KindQuestion, stats.Read)

		if len(batch) >= im.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (im *importer) importSystemPrompts(ctx context.Context) error {
	stats := im.report.stats(entity.KindSystemPrompt)
	batch := make([]entity.SystemPrompt, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.st.InsertSystemPrompts(ctx, batch); err != nil {
			return NewWriteError(entity.KindSystemPrompt, err)
		}
		stats.Imported += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	err := im.src.EachSystemPrompt(ctx, func(doc source.SystemPromptDoc) error {
		stats.Read++

		sp := entity.SystemPrompt{
			Key:         doc.Key,
			Name:        doc.Name,
			Description: doc.Description,
			Content:     doc.Content,
			Active:      doc.Active,
			Version:     doc.Version,
			CreatedAt:   doc.CreatedAt.UTC(),
			UpdatedAt:   doc.UpdatedAt.UTC(),
		}.Normalized()

		if im.digests != nil {
			im.digests.Add(entity.KindSystemPrompt, sp.ContentDigest())
		}
		im.promptKeys[sp.Key] = true
		batch = append(batch, sp)
		im.progress(entity.KindSystemPrompt, stats.Read)

		if len(batch) >= im.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (im *importer) importSystemPromptVersions(ctx context.Context) error {
	stats := im.report.stats(entity.KindSystemPromptVersion)
	batch := make([]entity.SystemPromptVersion, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.st.InsertSystemPromptVersions(ctx, batch); err != nil {
			return NewWriteError(entity.KindSystemPromptVersion, err)
		}
		stats.Imported += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	err := im.src.EachSystemPromptVersion(ctx, func(doc source.SystemPromptVersionDoc) error {
		stats.Read++

		// History entries reference prompts by natural key. A missing
		// parent is an orphan, same policy as questions.
		key := entity.NormalizeText(doc.PromptKey)
		if !im.promptKeys[key] {
			im.skip(stats, entity.KindSystemPromptVersion, doc.ID.Hex(), doc.PromptKey)
			return nil
		}

		v := entity.SystemPromptVersion{
			PromptKey: key,
			Version:   doc.Version,
			Content:   doc.Content,
			Author:    doc.Author,
			CreatedAt: doc.CreatedAt.UTC(),
		}.Normalized()

		if im.digests != nil {
			im.digests.Add(entity.KindSystemPromptVersion, v.ContentDigest())
		}
		batch = append(batch, v)
		im.progress(entity.KindSystemPromptVersion, stats.Read)

		if len(batch) >= im.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// skip records a non-fatal orphan with enough detail to reconstruct why a
// later count check failed.
func (im *importer) skip(stats *KindStats, kind entity.Kind, sourceID, missingRef string) {
	stats.Skipped++
	im.report.Skips = append(im.report.Skips, SkipNote{Kind: kind, SourceID: sourceID, MissingRef: missingRef})
	im.log.Warn("skipping orphan record", "kind", kind, "source_id", sourceID, "missing_ref", missingRef)
}

func (im *importer) progress(kind entity.Kind, read int64) {
	if im.progressEvery > 0 && read%int64(im.progressEvery) == 0 {
		im.log.Info("import progress", "kind", kind, "read", read)
	}
}
