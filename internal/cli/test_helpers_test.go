package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/mgo/v3/bson"
	"github.com/stretchr/testify/require"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/migrate"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/source"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

var cliDocTime = time.Date(2024, 3, 2, 11, 0, 0, 0, time.UTC)

// cliEnv is one command invocation's working tree: a config file pointing at
// temp data, backup and upload directories.
type cliEnv struct {
	root       string
	configPath string
	dbPath     string
	backupDir  string
	filesDir   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	root := t.TempDir()
	env := &cliEnv{
		root:       root,
		configPath: filepath.Join(root, "yurictl.yaml"),
		dbPath:     filepath.Join(root, "data", "chatbot.db"),
		backupDir:  filepath.Join(root, "backups"),
		filesDir:   filepath.Join(root, "uploads"),
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(env.dbPath), 0o755))

	cfg := fmt.Sprintf(`source:
  uri: mongodb://localhost:27017
  database: yurichatbot
target:
  db_path: %s
backup:
  dir: %s
  files_dir: %s
  keep: 7
`, env.dbPath, env.backupDir, env.filesDir)
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	return env
}

func (e *cliEnv) rootOptions(format string) *RootOptions {
	return &RootOptions{Config: e.configPath, Format: format}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// seedDatabase inserts one textbook per id, creating the database if needed.
func seedDatabase(t *testing.T, dbPath string, ids ...string) {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	books := make([]entity.Textbook, 0, len(ids))
	for _, id := range ids {
		books = append(books, entity.Textbook{
			ID:        id,
			Title:     "수능특강 영어 " + id,
			Publisher: "EBS",
			Subject:   "영어",
			Level:     "고3",
			Grade:     "상",
			CreatedAt: cliDocTime,
			UpdatedAt: cliDocTime,
		})
	}
	require.NoError(t, st.InsertTextbooks(context.Background(), books))
}

func countTextbookRows(t *testing.T, dbPath string) int64 {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	n, err := st.Count(context.Background(), entity.KindTextbook)
	require.NoError(t, err)
	return n
}

func cliOID(n int) bson.ObjectId {
	return bson.ObjectIdHex(fmt.Sprintf("%024x", n))
}

// cliSource returns a small but complete source: every kind is represented,
// so a migration through the command exercises all five importers.
func cliSource() *source.Memory {
	return &source.Memory{
		Textbooks: []source.TextbookDoc{
			{ID: cliOID(1), Title: "수능특강 영어", Publisher: "EBS", Subject: "영어", Level: "고3", Grade: "상", CreatedAt: cliDocTime, UpdatedAt: cliDocTime},
			{ID: cliOID(2), Title: "수능완성 영어", Publisher: "EBS", Subject: "영어", Level: "고3", Grade: "상", CreatedAt: cliDocTime, UpdatedAt: cliDocTime},
		},
		PassageSets: []source.PassageSetDoc{{
			ID:          cliOID(10),
			Title:       "Urban Farming",
			Passage:     "Urban farming has been promoted as a solution to food insecurity.",
			Commentary:  "도시 농업 지문. 주제 추론 연습용.",
			AccessCode:  "A1B2C3",
			TextbookIDs: []bson.ObjectId{cliOID(1)},
			CreatedAt:   cliDocTime,
			UpdatedAt:   cliDocTime,
		}},
		Questions: []source.QuestionDoc{{
			ID:           cliOID(20),
			PassageSetID: cliOID(10),
			Position:     1,
			Prompt:       "빈칸에 들어갈 말로 가장 적절한 것은?",
			Options:      []string{"however", "therefore", "moreover"},
			Answer:       "however",
			Explanation:  "역접 관계이므로 however가 적절하다.",
			CreatedAt:    cliDocTime,
			UpdatedAt:    cliDocTime,
		}},
		SystemPrompts: []source.SystemPromptDoc{{
			ID:          cliOID(30),
			Key:         "socratic-default",
			Name:        "소크라테스식 기본",
			Description: "기본 영어 지도 프롬프트",
			Content:     "You are a Socratic tutor guiding Korean students.",
			Active:      true,
			Version:     1,
			CreatedAt:   cliDocTime,
			UpdatedAt:   cliDocTime,
		}},
		SystemPromptVersions: []source.SystemPromptVersionDoc{{
			ID:        cliOID(40),
			PromptKey: "socratic-default",
			Version:   1,
			Content:   "You are a Socratic tutor guiding Korean students.",
			Author:    "yuri",
			CreatedAt: cliDocTime,
		}},
	}
}

func memoryDial(src source.Connector) migrate.SourceDialer {
	return func(ctx context.Context) (source.Connector, error) {
		return src, nil
	}
}

// writeFakeBackups drops empty artifacts with well-formed names into the
// backup directory. List and Cleanup only look at names and sizes.
func writeFakeBackups(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("backup"), 0o644))
	}
}
