package source

import "context"

// Memory is an in-process Connector holding fixture documents. Tests and the
// scenario harness use it in place of a live database. Enumeration honours
// the same record-boundary cancellation contract as the real connector.
type Memory struct {
	PingErr error

	Textbooks            []TextbookDoc
	PassageSets          []PassageSetDoc
	Questions            []QuestionDoc
	SystemPrompts        []SystemPromptDoc
	SystemPromptVersions []SystemPromptVersionDoc

	CloseCalls int
}

var _ Connector = (*Memory)(nil)

func (m *Memory) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.PingErr
}

func (m *Memory) Close() error {
	m.CloseCalls++
	return nil
}

func (m *Memory) EachTextbook(ctx context.Context, fn func(TextbookDoc) error) error {
	return eachSlice(ctx, m.Textbooks, fn)
}

func (m *Memory) EachPassageSet(ctx context.Context, fn func(PassageSetDoc) error) error {
	return eachSlice(ctx, m.PassageSets, fn)
}

func (m *Memory) EachQuestion(ctx context.Context, fn func(QuestionDoc) error) error {
	return eachSlice(ctx, m.Questions, fn)
}

func (m *Memory) EachSystemPrompt(ctx context.Context, fn func(SystemPromptDoc) error) error {
	return eachSlice(ctx, m.SystemPrompts, fn)
}

func (m *Memory) EachSystemPromptVersion(ctx context.Context, fn func(SystemPromptVersionDoc) error) error {
	return eachSlice(ctx, m.SystemPromptVersions, fn)
}

func eachSlice[D any](ctx context.Context, docs []D, fn func(D) error) error {
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}
