package migrate

import (
	"context"
	"log/slog"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/idmap"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/source"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

// resolver materializes the textbook/passage-set association as junction
// rows. It runs only after every kind is imported, so the mapper holds the
// complete identifier space.
type resolver struct {
	src    source.Connector
	st     *store.Store
	mapper *idmap.Mapper
	log    *slog.Logger
	report *Report
}

// run walks the association from the passage-set side. A side that cannot be
// resolved through the mapper is logged and skipped, never fatal; duplicate
// pairs are absorbed by the idempotent insert.
func (r *resolver) run(ctx context.Context) error {
	return r.src.EachPassageSet(ctx, func(doc source.PassageSetDoc) error {
		refs := doc.TextbookRefs()
		if len(refs) == 0 {
			return nil
		}

		psID, ok := r.mapper.Resolve(entity.KindPassageSet, doc.SourceID())
		if !ok {
			r.report.LinkWarnings++
			r.log.Warn("cannot link passage set, never imported", "source_id", doc.SourceID())
			return nil
		}

		for _, ref := range refs {
			tbID, ok := r.mapper.Resolve(entity.KindTextbook, ref)
			if !ok {
				r.report.LinkWarnings++
				r.log.Warn("cannot link textbook, never imported", "passage_set", doc.SourceID(), "missing_ref", ref)
				continue
			}

			inserted, err := r.st.LinkTextbookPassageSet(ctx, tbID, psID)
			if err != nil {
				return NewWriteError("", err)
			}
			if inserted {
				r.report.LinksCreated++
			} else {
				r.report.LinksExisting++
			}
		}
		return nil
	})
}
