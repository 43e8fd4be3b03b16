// Package backup creates, restores and prunes snapshots of the local
// server's SQLite database and its uploads directory. Database snapshots go
// through SQLite itself (WAL checkpoint, then VACUUM INTO) so a backup taken
// while the server is running is still a consistent database file.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

// Files inside a full backup bundle.
const (
	bundleDatabase = "database.db"
	bundleFiles    = "files.tar.gz"
)

// ErrNoFilesArchive reports that the named backup carries no files archive to
// restore. Callers restoring a full bundle treat it as "nothing to do" rather
// than a failure.
var ErrNoFilesArchive = errors.New("no files archive")

// Record describes one backup artifact under the backup directory.
type Record struct {
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// RestoreResult reports what a restore did to the live database.
type RestoreResult struct {
	Name       string `json:"name"`
	SafetyCopy string `json:"safety_copy,omitempty"`
	RolledBack bool   `json:"rolled_back,omitempty"`
}

// CleanupResult lists what a retention pass removed, or would remove.
type CleanupResult struct {
	Deleted []Record `json:"deleted"`
	DryRun  bool     `json:"dry_run,omitempty"`
}

// Manager creates, restores and prunes backups for one database and its
// uploads directory.
type Manager struct {
	dbPath   string
	dir      string
	filesDir string

	uploader Uploader
	log      *slog.Logger
	now      func() time.Time
	check    func(ctx context.Context, path string) error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithUploader mirrors every finished artifact to off-site storage. Upload
// failures fail the backup, so configure an uploader only when off-site
// copies are required.
func WithUploader(u Uploader) ManagerOption {
	return func(m *Manager) { m.uploader = u }
}

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock replaces the time source. Backup names carry second-granularity
// timestamps, so tests inject a clock that never repeats.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIntegrityCheck replaces the probe run against snapshot and restored
// database files.
func WithIntegrityCheck(check func(ctx context.Context, path string) error) ManagerOption {
	return func(m *Manager) {
		if check != nil {
			m.check = check
		}
	}
}

// NewManager builds a Manager. dbPath is the live database, dir the backup
// directory, filesDir the uploaded-assets directory ("" when there is none).
func NewManager(dbPath, dir, filesDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		dbPath:   dbPath,
		dir:      dir,
		filesDir: filesDir,
		log:      slog.Default(),
		now:      time.Now,
		check:    store.CheckIntegrity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateDatabase snapshots the open database into the backup directory. The
// snapshot is integrity-checked before it is kept: a corrupt backup is worse
// than no backup, so a snapshot that fails the check is deleted and the
// error reported.
func (m *Manager) CreateDatabase(ctx context.Context, st *store.Store) (*Record, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}

	t := m.now()
	name := databaseName(t)
	dest := filepath.Join(m.dir, name)

	if err := m.snapshotInto(ctx, st, dest); err != nil {
		return nil, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	rec := &Record{
		Name:      name,
		Category:  CategoryDatabase,
		Path:      dest,
		Size:      info.Size(),
		CreatedAt: t.UTC().Truncate(time.Second),
	}

	if err := m.upload(ctx, name, dest); err != nil {
		return nil, err
	}
	m.log.Info("database backup created", "name", rec.Name, "bytes", rec.Size)
	return rec, nil
}

// CreateFiles archives the uploads directory into the backup directory.
func (m *Manager) CreateFiles(ctx context.Context) (*Record, error) {
	if m.filesDir == "" {
		return nil, fmt.Errorf("no files directory configured")
	}
	if _, err := os.Stat(m.filesDir); err != nil {
		return nil, fmt.Errorf("files directory: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}

	t := m.now()
	name := filesName(t)
	dest := filepath.Join(m.dir, name)

	count, err := createArchive(m.filesDir, dest)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	rec := &Record{
		Name:      name,
		Category:  CategoryFiles,
		Path:      dest,
		Size:      info.Size(),
		CreatedAt: t.UTC().Truncate(time.Second),
	}

	if err := m.upload(ctx, name, dest); err != nil {
		return nil, err
	}
	m.log.Info("files backup created", "name", name, "files", count, "bytes", rec.Size)
	return rec, nil
}

// CreateFull writes a bundle directory holding a database snapshot, an
// archive of the uploads directory when one exists, and a backup.json
// descriptor tying them together. A failed files archive degrades the bundle
// to database-only rather than failing it; a failed database snapshot
// removes the whole bundle.
func (m *Manager) CreateFull(ctx context.Context, st *store.Store) (*Record, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}

	t := m.now()
	name := fullName(t)
	created := t.UTC().Truncate(time.Second)
	bundle := filepath.Join(m.dir, name)
	if err := os.MkdirAll(bundle, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bundle: %w", err)
	}
	fail := func(err error) (*Record, error) {
		os.RemoveAll(bundle)
		return nil, err
	}

	dbFile := filepath.Join(bundle, bundleDatabase)
	if err := m.snapshotInto(ctx, st, dbFile); err != nil {
		return fail(err)
	}
	dbInfo, err := os.Stat(dbFile)
	if err != nil {
		return fail(fmt.Errorf("failed to stat snapshot: %w", err))
	}
	sum, err := sha256File(dbFile)
	if err != nil {
		return fail(err)
	}

	desc := Descriptor{
		Name:          name,
		CreatedAt:     created,
		Database:      bundleDatabase,
		DatabaseBytes: dbInfo.Size(),
		Checksum:      sum,
	}

	if m.filesDir != "" {
		if _, err := os.Stat(m.filesDir); err == nil {
			archive := filepath.Join(bundle, bundleFiles)
			count, err := createArchive(m.filesDir, archive)
			if err != nil {
				m.log.Warn("files archive failed, bundle keeps database only", "error", err)
			} else {
				desc.FilesArchive = bundleFiles
				desc.FileCount = count
			}
		}
	}

	if err := writeDescriptor(bundle, desc); err != nil {
		return fail(err)
	}
	size, err := dirSize(bundle)
	if err != nil {
		return fail(err)
	}
	rec := &Record{
		Name:      name,
		Category:  CategoryFull,
		Path:      bundle,
		Size:      size,
		CreatedAt: created,
	}

	if err := m.uploadBundle(ctx, name, bundle); err != nil {
		return nil, err
	}
	m.log.Info("full backup created", "name", name, "files", desc.FileCount, "bytes", size)
	return rec, nil
}

// snapshotInto checkpoints the store's WAL and vacuums the database into
// dest, then verifies the result. dest is removed when the check fails.
func (m *Manager) snapshotInto(ctx context.Context, st *store.Store, dest string) error {
	if err := st.Checkpoint(ctx); err != nil {
		return err
	}
	if err := st.VacuumInto(ctx, dest); err != nil {
		return err
	}
	if err := m.check(ctx, dest); err != nil {
		os.Remove(dest)
		return fmt.Errorf("snapshot failed integrity check, discarded: %w", err)
	}
	return nil
}

// Restore replaces the live database with the named backup: copy the live
// database aside, copy the backup in, integrity-check the result. When the
// check fails the safety copy goes back and the returned result reports the
// rollback alongside the error. The caller must have closed every connection
// to the live database first; SQLite gives no protection against swapping a
// file out from under an open handle.
func (m *Manager) Restore(ctx context.Context, name string) (*RestoreResult, error) {
	src, err := m.resolveDatabase(name)
	if err != nil {
		return nil, err
	}

	res := &RestoreResult{Name: name}

	// Safety copy first; a restore must never be the operation that loses
	// data. A missing live database just means there is nothing to save.
	if _, err := os.Stat(m.dbPath); err == nil {
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create backup dir: %w", err)
		}
		safety := preRestoreName(m.now())
		if err := copyFile(m.dbPath, filepath.Join(m.dir, safety)); err != nil {
			return nil, fmt.Errorf("safety copy: %w", err)
		}
		res.SafetyCopy = safety
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat live database: %w", err)
	}

	restoreErr := m.replaceLive(src)
	if restoreErr == nil {
		if err := m.check(ctx, m.dbPath); err != nil {
			restoreErr = fmt.Errorf("restored database failed integrity check: %w", err)
		}
	}
	if restoreErr == nil {
		m.log.Info("restore complete", "name", name, "safety_copy", res.SafetyCopy)
		return res, nil
	}

	// Put the pre-restore state back.
	if res.SafetyCopy != "" {
		if err := m.replaceLive(filepath.Join(m.dir, res.SafetyCopy)); err != nil {
			m.log.Error("rollback after failed restore also failed", "error", err)
			return res, fmt.Errorf("%w (rollback also failed: %v)", restoreErr, err)
		}
		res.RolledBack = true
		m.log.Warn("restore failed, previous database put back", "name", name, "error", restoreErr)
	} else {
		// No safety copy means no database existed before; don't leave a
		// bad one behind.
		os.Remove(m.dbPath)
		removeSidecars(m.dbPath)
	}
	return res, restoreErr
}

// RestoreFiles unpacks the named files archive over the uploads directory.
// Existing files are overwritten in place; files created since the backup
// are left alone. Returns the number of files written.
func (m *Manager) RestoreFiles(name string) (int, error) {
	if m.filesDir == "" {
		return 0, fmt.Errorf("no files directory configured")
	}

	var archive string
	if category, _, ok := parseName(name, false); ok && category == CategoryFiles {
		archive = filepath.Join(m.dir, name)
	} else if category, _, ok := parseName(name, true); ok && category == CategoryFull {
		desc, err := readDescriptor(filepath.Join(m.dir, name))
		if err != nil {
			return 0, err
		}
		if desc.FilesArchive == "" {
			return 0, fmt.Errorf("bundle %s has %w", name, ErrNoFilesArchive)
		}
		if filepath.Base(desc.FilesArchive) != desc.FilesArchive {
			return 0, fmt.Errorf("bundle %s: descriptor names a file outside the bundle", name)
		}
		archive = filepath.Join(m.dir, name, desc.FilesArchive)
	} else {
		return 0, fmt.Errorf("backup %s holds %w", name, ErrNoFilesArchive)
	}

	if err := os.MkdirAll(m.filesDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create files dir: %w", err)
	}
	count, err := extractArchive(archive, m.filesDir)
	if err != nil {
		return count, err
	}
	m.log.Info("files restored", "name", name, "files", count)
	return count, nil
}

// resolveDatabase maps a backup name to the database file to restore from.
// Full bundles are verified against their descriptor checksum before the
// restore touches the live database.
func (m *Manager) resolveDatabase(name string) (string, error) {
	if category, _, ok := parseName(name, false); ok {
		switch category {
		case CategoryDatabase, CategoryPreRestore:
			path := filepath.Join(m.dir, name)
			if _, err := os.Stat(path); err != nil {
				return "", fmt.Errorf("backup %s: %w", name, err)
			}
			return path, nil
		case CategoryFiles:
			return "", fmt.Errorf("backup %s holds files, not a database", name)
		}
	}
	if category, _, ok := parseName(name, true); ok && category == CategoryFull {
		bundle := filepath.Join(m.dir, name)
		desc, err := readDescriptor(bundle)
		if err != nil {
			return "", err
		}
		if filepath.Base(desc.Database) != desc.Database {
			return "", fmt.Errorf("bundle %s: descriptor names a file outside the bundle", name)
		}
		dbFile := filepath.Join(bundle, desc.Database)
		sum, err := sha256File(dbFile)
		if err != nil {
			return "", err
		}
		if sum != desc.Checksum {
			return "", fmt.Errorf("bundle %s: database does not match its descriptor checksum", name)
		}
		return dbFile, nil
	}
	return "", fmt.Errorf("unrecognized backup name %q", name)
}

// replaceLive copies src over the live database path and drops stale WAL and
// SHM sidecars so SQLite cannot pair the new file with old log frames.
func (m *Manager) replaceLive(src string) error {
	if err := os.MkdirAll(filepath.Dir(m.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database dir: %w", err)
	}
	if err := copyFile(src, m.dbPath); err != nil {
		return err
	}
	removeSidecars(m.dbPath)
	return nil
}

func removeSidecars(dbPath string) {
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
}

// List returns every backup in the backup directory, oldest first. A missing
// backup directory is an empty list, not an error.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup dir: %w", err)
	}

	records := []Record{}
	for _, entry := range entries {
		category, created, ok := parseName(entry.Name(), entry.IsDir())
		if !ok {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		var size int64
		if entry.IsDir() {
			size, err = dirSize(path)
			if err != nil {
				return nil, err
			}
		} else {
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
			}
			size = info.Size()
		}
		records = append(records, Record{
			Name:      entry.Name(),
			Category:  category,
			Path:      path,
			Size:      size,
			CreatedAt: created,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Name < records[j].Name
	})
	return records, nil
}

// Cleanup applies the retention policy: the newest keep backups of each
// category stay, the rest go. Pre-restore safety copies are not subject to
// retention; they exist to undo a restore and are removed by hand.
func (m *Manager) Cleanup(keep int, dryRun bool) (*CleanupResult, error) {
	if keep < 1 {
		return nil, fmt.Errorf("retention must keep at least one backup, got %d", keep)
	}
	records, err := m.List()
	if err != nil {
		return nil, err
	}

	byCategory := map[Category][]Record{}
	for _, rec := range records {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}

	result := &CleanupResult{Deleted: []Record{}, DryRun: dryRun}
	for _, category := range retentionCategories {
		recs := byCategory[category]
		if len(recs) <= keep {
			continue
		}
		// List is oldest first; everything before the newest keep goes.
		for _, rec := range recs[:len(recs)-keep] {
			if !dryRun {
				if err := os.RemoveAll(rec.Path); err != nil {
					return nil, fmt.Errorf("failed to delete %s: %w", rec.Name, err)
				}
				m.log.Info("backup deleted", "name", rec.Name, "category", rec.Category)
			}
			result.Deleted = append(result.Deleted, rec)
		}
	}
	return result, nil
}

// upload mirrors a single artifact when an uploader is configured.
func (m *Manager) upload(ctx context.Context, key, path string) error {
	if m.uploader == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", path, err)
	}
	defer f.Close()
	if err := m.uploader.Upload(ctx, key, f); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// uploadBundle mirrors every file in a bundle concurrently under name/.
func (m *Manager) uploadBundle(ctx context.Context, name, bundle string) error {
	if m.uploader == nil {
		return nil
	}
	entries, err := os.ReadDir(bundle)
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		g.Go(func() error {
			return m.upload(gctx, name+"/"+fileName, filepath.Join(bundle, fileName))
		})
	}
	return g.Wait()
}

// dirSize totals the regular files under dir.
func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to size %s: %w", dir, err)
	}
	return total, nil
}

// copyFile copies src to dest and fsyncs before returning, so a replaced
// database survives a crash right after the restore.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to copy to %s: %w", dest, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return nil
}
