package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

func verifierStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chatbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestVerifierChecksumMismatch(t *testing.T) {
	st := verifierStore(t)
	ctx := context.Background()

	book := entity.Textbook{
		ID: "tb-1", Title: "수능특강 영어", Publisher: "EBS", Subject: "영어",
		Level: "고3", Grade: "상", CreatedAt: docTime, UpdatedAt: docTime,
	}
	require.NoError(t, st.InsertTextbooks(ctx, []entity.Textbook{book}))

	report := newReport()
	report.stats(entity.KindTextbook).Read = 1
	report.stats(entity.KindTextbook).Imported = 1

	// The source-side digest deliberately does not describe the stored row.
	digests := entity.NewDigestSet()
	digests.Add(entity.KindTextbook, "deadbeef")

	v := &verifier{st: st, log: quietLogger(), report: report, digests: digests}
	err := v.run(ctx)
	require.Error(t, err)
	assert.True(t, IsChecksumMismatch(err))

	require.Len(t, report.Verification, 5)
	res := report.Verification[0]
	assert.Equal(t, entity.KindTextbook, res.Kind)
	assert.True(t, res.CountMatch)
	assert.False(t, res.ChecksumMatch)
	assert.NotEmpty(t, res.SourceChecksum)
	assert.NotEmpty(t, res.TargetChecksum)
	assert.NotEqual(t, res.SourceChecksum, res.TargetChecksum)
}

func TestVerifierChecksumAgreesWithStoredRows(t *testing.T) {
	st := verifierStore(t)
	ctx := context.Background()

	book := entity.Textbook{
		ID: "tb-1", Title: "수능완성 영어", Publisher: "EBS", Subject: "영어",
		Level: "고3", Grade: "상", CreatedAt: docTime, UpdatedAt: docTime,
	}
	require.NoError(t, st.InsertTextbooks(ctx, []entity.Textbook{book}))

	report := newReport()
	report.stats(entity.KindTextbook).Read = 1
	report.stats(entity.KindTextbook).Imported = 1

	digests := entity.NewDigestSet()
	digests.Add(entity.KindTextbook, book.ContentDigest())

	v := &verifier{st: st, log: quietLogger(), report: report, digests: digests}
	require.NoError(t, v.run(ctx))

	for _, res := range report.Verification {
		assert.True(t, res.ChecksumMatch, "%s", res.Kind)
	}
}

func TestVerifierReportsEveryKindBeforeFailing(t *testing.T) {
	st := verifierStore(t)
	ctx := context.Background()

	report := newReport()
	// Two kinds claim reads the empty store cannot satisfy.
	report.stats(entity.KindTextbook).Read = 2
	report.stats(entity.KindQuestion).Read = 4

	v := &verifier{st: st, log: quietLogger(), report: report}
	err := v.run(ctx)
	require.Error(t, err)

	// The first mismatch in import order wins the error.
	assert.True(t, IsCountMismatch(err))
	assert.Contains(t, err.Error(), "source has 2 textbooks, target has 0")

	// But the report still carries a row for all five kinds.
	require.Len(t, report.Verification, 5)
	var mismatches int
	for _, res := range report.Verification {
		if !res.CountMatch {
			mismatches++
		}
	}
	assert.Equal(t, 2, mismatches)
}

func TestVerifierIgnoresJunctionRows(t *testing.T) {
	st := verifierStore(t)
	ctx := context.Background()

	report := newReport()
	// All entity counts agree (everything zero), but the report claims a
	// created link the empty junction table does not hold. Verification
	// covers entity kinds only, so this passes; the gap is intentional.
	report.LinksCreated = 1

	v := &verifier{st: st, log: quietLogger(), report: report}
	require.NoError(t, v.run(ctx))

	links, err := st.LinkCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, links)
}
