package store

import (
	"context"
	"fmt"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
)

// Count returns the number of rows stored for the kind.
func (s *Store) Count(ctx context.Context, kind entity.Kind) (int64, error) {
	switch kind {
	case entity.KindTextbook, entity.KindPassageSet, entity.KindQuestion,
		entity.KindSystemPrompt, entity.KindSystemPromptVersion:
	default:
		return 0, fmt.Errorf("count: unknown entity kind %q", kind)
	}

	// Kind values double as table names; the switch above pins the set.
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// LinkCount returns the number of textbook/passage-set junction rows.
func (s *Store) LinkCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM textbook_passage_sets").Scan(&n); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// Textbooks returns all textbooks ordered by identifier.
// Returns an empty slice, never nil, when the table is empty.
func (s *Store) Textbooks(ctx context.Context) ([]entity.Textbook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, publisher, subject, level, grade, created_at, updated_at
		FROM textbooks
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("read textbooks: %w", err)
	}
	defer rows.Close()

	textbooks := []entity.Textbook{}
	for rows.Next() {
		var tb entity.Textbook
		var created, updated string
		if err := rows.Scan(&tb.ID, &tb.Title, &tb.Publisher, &tb.Subject, &tb.Level, &tb.Grade, &created, &updated); err != nil {
			return nil, fmt.Errorf("read textbooks: %w", err)
		}
		if tb.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("read textbooks: %w", err)
		}
		if tb.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("read textbooks: %w", err)
		}
		textbooks = append(textbooks, tb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read textbooks: %w", err)
	}
	return textbooks, nil
}

// PassageSets returns all passage sets ordered by identifier.
func (s *Store) PassageSets(ctx context.Context) ([]entity.PassageSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, passage, commentary, access_code, created_at, updated_at
		FROM passage_sets
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("read passage sets: %w", err)
	}
	defer rows.Close()

	sets := []entity.PassageSet{}
	for rows.Next() {
		var ps entity.PassageSet
		var created, updated string
		if err := rows.Scan(&ps.ID, &ps.Title, &ps.Passage, &ps.Commentary, &ps.AccessCode, &created, &updated); err != nil {
			return nil, fmt.Errorf("read passage sets: %w", err)
		}
		if ps.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("read passage sets: %w", err)
		}
		if ps.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("read passage sets: %w", err)
		}
		sets = append(sets, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read passage sets: %w", err)
	}
	return sets, nil
}

// Questions returns all questions ordered by passage set and position.
func (s *Store) Questions(ctx context.Context) ([]entity.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, passage_set_id, position, prompt, options_json, answer, explanation, created_at, updated_at
		FROM questions
		ORDER BY passage_set_id, position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	defer rows.Close()

	questions := []entity.Question{}
	for rows.Next() {
		var q entity.Question
		var optionsJSON, created, updated string
		if err := rows.Scan(&q.ID, &q.PassageSetID, &q.Position, &q.Prompt, &optionsJSON, &q.Answer, &q.Explanation, &created, &updated); err != nil {
			return nil, fmt.Errorf("read questions: %w", err)
		}
		if q.Options, err = unmarshalOptions(optionsJSON); err != nil {
			return nil, fmt.Errorf("read questions: %w", err)
		}
		if q.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("read questions: %w", err)
		}
		if q.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("read questions: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return questions, nil
}

// SystemPrompts returns all system prompts ordered by key.
func (s *Store) SystemPrompts(ctx context.Context) ([]entity.SystemPrompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, name, description, content, active, version, created_at, updated_at
		FROM system_prompts
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("read system prompts: %w", err)
	}
	defer rows.Close()

	prompts := []entity.SystemPrompt{}
	for rows.Next() {
		var sp entity.SystemPrompt
		var created, updated string
		if err := rows.Scan(&sp.Key, &sp.Name, &sp.Description, &sp.Content, &sp.Active, &sp.Version, &created, &updated); err != nil {
			return nil, fmt.Errorf("read system prompts: %w", err)
		}
		if sp.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("read system prompts: %w", err)
		}
		if sp.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("read system prompts: %w", err)
		}
		prompts = append(prompts, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read system prompts: %w", err)
	}
	return prompts, nil
}

// SystemPromptVersions returns all prompt history entries ordered by key and
// version.
func (s *Store) SystemPromptVersions(ctx context.Context) ([]entity.SystemPromptVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prompt_key, version, content, author, created_at
		FROM system_prompt_versions
		ORDER BY prompt_key, version
	`)
	if err != nil {
		return nil, fmt.Errorf("read system prompt versions: %w", err)
	}
	defer rows.Close()

	versions := []entity.SystemPromptVersion{}
	for rows.Next() {
		var v entity.SystemPromptVersion
		var created string
		if err := rows.Scan(&v.PromptKey, &v.Version, &v.Content, &v.Author, &created); err != nil {
			return nil, fmt.Errorf("read system prompt versions: %w", err)
		}
		if v.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("read system prompt versions: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read system prompt versions: %w", err)
	}
	return versions, nil
}

// Links returns all junction rows ordered by both identifiers.
func (s *Store) Links(ctx context.Context) ([]entity.TextbookPassageSetLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT textbook_id, passage_set_id
		FROM textbook_passage_sets
		ORDER BY textbook_id, passage_set_id
	`)
	if err != nil {
		return nil, fmt.Errorf("read links: %w", err)
	}
	defer rows.Close()

	links := []entity.TextbookPassageSetLink{}
	for rows.Next() {
		var l entity.TextbookPassageSetLink
		if err := rows.Scan(&l.TextbookID, &l.PassageSetID); err != nil {
			return nil, fmt.Errorf("read links: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read links: %w", err)
	}
	return links, nil
}
