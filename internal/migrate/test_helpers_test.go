package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/mgo/v3/bson"
	"github.com/stretchr/testify/require"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/backup"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/source"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/testutil"
)

var (
	runBase = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	docTime = time.Date(2024, 3, 2, 11, 0, 0, 456000000, time.UTC)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// oid builds a deterministic ObjectId from a small integer.
func oid(n int) bson.ObjectId {
	return bson.ObjectIdHex(fmt.Sprintf("%024x", n))
}

// fixtureSource is a small, fully consistent source: three textbooks, two
// passage sets (one associated with two textbooks, one standalone), five
// questions, one prompt with two history entries.
func fixtureSource() *source.Memory {
	return &source.Memory{
		Textbooks: []source.TextbookDoc{
			{ID: oid(1), Title: "수능특강 영어", Publisher: "EBS", Subject: "영어", Level: "고3", Grade: "상", CreatedAt: docTime, UpdatedAt: docTime},
			{ID: oid(2), Title: "수능완성 영어", Publisher: "EBS", Subject: "영어", Level: "고3", Grade: "상", CreatedAt: docTime, UpdatedAt: docTime},
			{ID: oid(3), Title: "올림포스 영어독해", Publisher: "천재교육", Subject: "영어", Level: "고2", Grade: "중", CreatedAt: docTime, UpdatedAt: docTime},
		},
		PassageSets: []source.PassageSetDoc{
			{
				ID:          oid(10),
				Title:       "빈칸추론 연습 1",
				Passage:     "The ability to think about one's own thinking is called metacognition.",
				Commentary:  "메타인지의 정의를 다루는 지문.",
				AccessCode:  "A1B2C3",
				TextbookIDs: []bson.ObjectId{oid(1), oid(2)},
				CreatedAt:   docTime,
				UpdatedAt:   docTime,
			},
			{
				ID:         oid(11),
				Title:      "주제추론 연습 1",
				Passage:    "Urban farming has reshaped how cities think about food security.",
				Commentary: "도시 농업의 의의를 다루는 지문.",
				AccessCode: "D4E5F6",
				CreatedAt:  docTime,
				UpdatedAt:  docTime,
			},
		},
		Questions: []source.QuestionDoc{
			question(21, 10, 1),
			question(22, 10, 2),
			question(23, 10, 3),
			question(24, 11, 1),
			question(25, 11, 2),
		},
		SystemPrompts: []source.SystemPromptDoc{
			{
				ID:          oid(30),
				Key:         "socratic-default",
				Name:        "소크라테스식 기본 프롬프트",
				Description: "질문을 되돌려주는 기본 지도 방식",
				Content:     "You are a Socratic tutor. Never give the answer directly.",
				Active:      true,
				Version:     2,
				CreatedAt:   docTime,
				UpdatedAt:   docTime,
			},
		},
		SystemPromptVersions: []source.SystemPromptVersionDoc{
			{ID: oid(40), PromptKey: "socratic-default", Version: 1, Content: "You are a tutor.", Author: "yuri", CreatedAt: docTime},
			{ID: oid(41), PromptKey: "socratic-default", Version: 2, Content: "You are a Socratic tutor. Never give the answer directly.", Author: "yuri", CreatedAt: docTime},
		},
	}
}

func question(id, passageSet, position int) source.QuestionDoc {
	return source.QuestionDoc{
		ID:           oid(id),
		PassageSetID: oid(passageSet),
		Position:     position,
		Prompt:       "빈칸에 들어갈 말로 가장 적절한 것은?",
		Options:      []string{"however", "therefore", "moreover", "instead", "likewise"},
		Answer:       "however",
		Explanation:  "앞뒤 문장이 역접 관계이므로 however가 적절하다.",
		CreatedAt:    docTime,
		UpdatedAt:    docTime,
	}
}

// withOrphanQuestion appends a question whose passage set does not exist in
// the source. Import skips it; count verification then fails for questions.
func withOrphanQuestion(src *source.Memory) *source.Memory {
	src.Questions = append(src.Questions, source.QuestionDoc{
		ID:           oid(99),
		PassageSetID: oid(77),
		Position:     9,
		Prompt:       "고아 문항",
		Options:      []string{"a", "b", "c", "d", "e"},
		Answer:       "a",
		Explanation:  "참조하는 지문 세트가 없다.",
		CreatedAt:    docTime,
		UpdatedAt:    docTime,
	})
	return src
}

// rig wires one orchestrator run: a source connector, a temp target path and
// a deterministic clock shared with any snapshot manager.
type rig struct {
	src    source.Connector
	dbPath string
	clock  *testutil.Clock
}

func newRig(t *testing.T, src source.Connector) *rig {
	t.Helper()

	return &rig{
		src:    src,
		dbPath: filepath.Join(t.TempDir(), "chatbot.db"),
		clock:  testutil.NewClock(runBase, time.Second),
	}
}

func (r *rig) orchestrator(opts ...Option) *Orchestrator {
	dial := func(ctx context.Context) (source.Connector, error) { return r.src, nil }
	base := []Option{
		WithLogger(quietLogger()),
		WithClock(r.clock.Now),
	}
	return New(dial, r.dbPath, append(base, opts...)...)
}

// snapshots builds a real backup manager next to the target database.
func (r *rig) snapshots(t *testing.T) *backup.Manager {
	t.Helper()

	return backup.NewManager(r.dbPath, filepath.Join(filepath.Dir(r.dbPath), "backups"), "",
		backup.WithClock(r.clock.Now),
		backup.WithLogger(quietLogger()))
}

func countRows(t *testing.T, dbPath string, kind entity.Kind) int64 {
	t.Helper()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	n, err := st.Count(context.Background(), kind)
	require.NoError(t, err)
	return n
}

// fakeSnapshotter stands in for the backup manager when a test needs to
// force backup or restore failures, or observe restore calls.
type fakeSnapshotter struct {
	createErr  error
	restoreErr error
	created    int
	restored   []string
}

func (f *fakeSnapshotter) CreateDatabase(_ context.Context, _ *store.Store) (*backup.Record, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &backup.Record{Name: "db-20240501-093001.db", Category: backup.CategoryDatabase}, nil
}

func (f *fakeSnapshotter) Restore(_ context.Context, name string) (*backup.RestoreResult, error) {
	f.restored = append(f.restored, name)
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return &backup.RestoreResult{Name: name}, nil
}
