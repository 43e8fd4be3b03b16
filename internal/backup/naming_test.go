package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupNamesEmbedUTCTimestamps(t *testing.T) {
	// 18:30 KST is 09:30 UTC; names must carry the UTC reading.
	kst := time.FixedZone("KST", 9*60*60)
	at := time.Date(2024, 5, 1, 18, 30, 5, 0, kst)

	assert.Equal(t, "db-20240501-093005.db", databaseName(at))
	assert.Equal(t, "files-20240501-093005.tar.gz", filesName(at))
	assert.Equal(t, "full-20240501-093005", fullName(at))
	assert.Equal(t, "pre-restore-20240501-093005.db", preRestoreName(at))
}

func TestParseNameRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 5, 0, time.UTC)

	tests := []struct {
		name     string
		isDir    bool
		category Category
	}{
		{databaseName(at), false, CategoryDatabase},
		{filesName(at), false, CategoryFiles},
		{fullName(at), true, CategoryFull},
		{preRestoreName(at), false, CategoryPreRestore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, created, ok := parseName(tt.name, tt.isDir)
			require.True(t, ok)
			assert.Equal(t, tt.category, category)
			assert.True(t, created.Equal(at), "parsed %v, want %v", created, at)
		})
	}
}

func TestParseNameRejectsForeignEntries(t *testing.T) {
	tests := []struct {
		name  string
		isDir bool
	}{
		{"chatbot.db", false},
		{"db-20240501.db", false},
		{"db-notastamp-000000.db", false},
		{"db-20240501-093005.db.tmp", false},
		{"files-20240501-093005.tar.gz.partial", false},
		{"full-20240501-093005", false}, // bundle name, but a plain file
		{"db-20240501-093005.db", true}, // database name, but a directory
		{".DS_Store", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := parseName(tt.name, tt.isDir)
			assert.False(t, ok)
		})
	}
}
