package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
)

// inTx runs fn inside a transaction, rolling back unless fn and the commit
// both succeed.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InsertTextbooks writes a batch of textbooks in one transaction.
// The batch lands fully or not at all, so a failure never leaves partial rows.
func (s *Store) InsertTextbooks(ctx context.Context, textbooks []entity.Textbook) error {
	if len(textbooks) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO textbooks
			(id, title, publisher, subject, level, grade, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, tb := range textbooks {
			if _, err := stmt.ExecContext(ctx,
				tb.ID, tb.Title, tb.Publisher, tb.Subject, tb.Level, tb.Grade,
				formatTime(tb.CreatedAt), formatTime(tb.UpdatedAt),
			); err != nil {
				return fmt.Errorf("textbook %s: %w", tb.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert textbooks: %w", err)
	}
	return nil
}

// InsertPassageSets writes a batch of passage sets in one transaction.
// The access code carries a UNIQUE constraint; a collision fails the batch.
func (s *Store) InsertPassageSets(ctx context.Context, sets []entity.PassageSet) error {
	if len(sets) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO passage_sets
			(id, title, passage, commentary, access_code, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ps := range sets {
			if _, err := stmt.ExecContext(ctx,
				ps.ID, ps.Title, ps.Passage, ps.Commentary, ps.AccessCode,
				formatTime(ps.CreatedAt), formatTime(ps.UpdatedAt),
			); err != nil {
				return fmt.Errorf("passage set %s: %w", ps.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert passage sets: %w", err)
	}
	return nil
}

// InsertQuestions writes a batch of questions in one transaction. Options are
// serialized into the single options_json column. The referenced passage set
// must already exist (foreign key constraint).
func (s *Store) InsertQuestions(ctx context.Context, questions []entity.Question) error {
	if len(questions) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO questions
			(id, passage_set_id, position, prompt, options_json, answer, explanation, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, q := range questions {
			optionsJSON, err := marshalOptions(q.Options)
			if err != nil {
				return fmt.Errorf("question %s: %w", q.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				q.ID, q.PassageSetID, q.Position, q.Prompt, optionsJSON,
				q.Answer, q.Explanation,
				formatTime(q.CreatedAt), formatTime(q.UpdatedAt),
			); err != nil {
				return fmt.Errorf("question %s: %w", q.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return nil
}

// InsertSystemPrompts writes a batch of system prompts in one transaction.
func (s *Store) InsertSystemPrompts(ctx context.Context, prompts []entity.SystemPrompt) error {
	if len(prompts) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO system_prompts
			(key, name, description, content, active, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sp := range prompts {
			if _, err := stmt.ExecContext(ctx,
				sp.Key, sp.Name, sp.Description, sp.Content, sp.Active, sp.Version,
				formatTime(sp.CreatedAt), formatTime(sp.UpdatedAt),
			); err != nil {
				return fmt.Errorf("system prompt %s: %w", sp.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert system prompts: %w", err)
	}
	return nil
}

// InsertSystemPromptVersions writes a batch of prompt history entries in one
// transaction. History is append-only; rows are never updated.
func (s *Store) InsertSystemPromptVersions(ctx context.Context, versions []entity.SystemPromptVersion) error {
	if len(versions) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO system_prompt_versions
			(prompt_key, version, content, author, created_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, v := range versions {
			if _, err := stmt.ExecContext(ctx,
				v.PromptKey, v.Version, v.Content, v.Author, formatTime(v.CreatedAt),
			); err != nil {
				return fmt.Errorf("system prompt version %s/%d: %w", v.PromptKey, v.Version, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert system prompt versions: %w", err)
	}
	return nil
}

// LinkTextbookPassageSet inserts one junction row.
// Uses ON CONFLICT DO NOTHING for idempotency - linking the same pair twice
// is not an error and leaves exactly one row. inserted reports whether a new
// row landed. Both sides must already exist (foreign key constraints).
func (s *Store) LinkTextbookPassageSet(ctx context.Context, textbookID, passageSetID string) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO textbook_passage_sets (textbook_id, passage_set_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, textbookID, passageSetID)
	if err != nil {
		return false, fmt.Errorf("link textbook %s to passage set %s: %w", textbookID, passageSetID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link textbook %s to passage set %s: %w", textbookID, passageSetID, err)
	}
	return n > 0, nil
}
