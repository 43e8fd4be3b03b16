package backup

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/testutil"
)

var (
	backupBase = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	seedTime   = time.Date(2024, 5, 1, 9, 30, 0, 123000000, time.UTC)
)

// testEnv holds one manager's world: the live database, backup directory and
// uploads directory, all under a per-test temp root, plus a stepping clock so
// consecutive backups never collide on their second-granularity names.
type testEnv struct {
	dbPath   string
	dir      string
	filesDir string
	clock    *testutil.Clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	env := &testEnv{
		dbPath:   filepath.Join(root, "data", "chatbot.db"),
		dir:      filepath.Join(root, "backups"),
		filesDir: filepath.Join(root, "uploads"),
		clock:    testutil.NewClock(backupBase, time.Second),
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(env.dbPath), 0o755))
	return env
}

func (e *testEnv) manager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()

	base := []ManagerOption{
		WithClock(e.clock.Now),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	return NewManager(e.dbPath, e.dir, e.filesDir, append(base, opts...)...)
}

func (e *testEnv) openStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func (e *testEnv) writeUploads(t *testing.T, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(e.filesDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func seedTextbooks(t *testing.T, st *store.Store, ids ...string) {
	t.Helper()

	books := make([]entity.Textbook, 0, len(ids))
	for _, id := range ids {
		books = append(books, entity.Textbook{
			ID:        id,
			Title:     "수능특강 영어 " + id,
			Publisher: "EBS",
			Subject:   "영어",
			Level:     "고3",
			Grade:     "상",
			CreatedAt: seedTime,
			UpdatedAt: seedTime,
		})
	}
	require.NoError(t, st.InsertTextbooks(context.Background(), books))
}

// countTextbooks opens the database at path just long enough to count rows.
func countTextbooks(t *testing.T, path string) int {
	t.Helper()

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	n, err := st.Count(context.Background(), entity.KindTextbook)
	require.NoError(t, err)
	return int(n)
}

// fakeUploader records uploads in memory.
type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: map[string][]byte{}}
}

func (f *fakeUploader) Upload(_ context.Context, key string, r io.Reader) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeUploader) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
