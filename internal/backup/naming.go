package backup

import (
	"strings"
	"time"
)

// Category groups backups for retention. Cleanup retains the N newest per
// retention category; pre-restore safety copies sit outside retention and
// are never deleted automatically.
type Category string

const (
	// CategoryDatabase is a standalone point-in-time database copy.
	CategoryDatabase Category = "db"
	// CategoryFiles is a compressed archive of the uploaded file assets.
	CategoryFiles Category = "files"
	// CategoryFull is a bundle directory holding a database copy, a files
	// archive, and a descriptor.
	CategoryFull Category = "full"
	// CategoryPreRestore is the safety copy taken immediately before a
	// restore overwrites the live database.
	CategoryPreRestore Category = "pre-restore"
)

// retentionCategories are the categories Cleanup prunes.
var retentionCategories = []Category{CategoryDatabase, CategoryFiles, CategoryFull}

// nameTimeLayout stamps artifact names at one-second granularity, matching
// how operators reference backups by hand.
const nameTimeLayout = "20060102-150405"

func databaseName(t time.Time) string   { return "db-" + t.UTC().Format(nameTimeLayout) + ".db" }
func filesName(t time.Time) string      { return "files-" + t.UTC().Format(nameTimeLayout) + ".tar.gz" }
func fullName(t time.Time) string       { return "full-" + t.UTC().Format(nameTimeLayout) }
func preRestoreName(t time.Time) string { return "pre-restore-" + t.UTC().Format(nameTimeLayout) + ".db" }

// parseName recovers the category and creation time from an artifact name.
// Foreign files in the backup directory return ok=false and are left alone.
func parseName(name string, isDir bool) (Category, time.Time, bool) {
	type pattern struct {
		prefix   string
		suffix   string
		category Category
		dir      bool
	}
	patterns := []pattern{
		{"pre-restore-", ".db", CategoryPreRestore, false},
		{"db-", ".db", CategoryDatabase, false},
		{"files-", ".tar.gz", CategoryFiles, false},
		{"full-", "", CategoryFull, true},
	}

	for _, p := range patterns {
		if p.dir != isDir {
			continue
		}
		if !strings.HasPrefix(name, p.prefix) || !strings.HasSuffix(name, p.suffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, p.prefix), p.suffix)
		t, err := time.Parse(nameTimeLayout, stamp)
		if err != nil {
			return "", time.Time{}, false
		}
		return p.category, t.UTC(), true
	}
	return "", time.Time{}, false
}
