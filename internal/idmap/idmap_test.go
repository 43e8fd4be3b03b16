package idmap

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
)

func sequentialGenerator() Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("target-%d", n)
	}
}

func TestAssignThenResolve(t *testing.T) {
	m := New(WithGenerator(sequentialGenerator()))

	assigned, err := m.Assign(entity.KindTextbook, "mongo-abc")
	require.NoError(t, err)
	assert.Equal(t, "target-1", assigned)

	resolved, found := m.Resolve(entity.KindTextbook, "mongo-abc")
	require.True(t, found)
	assert.Equal(t, assigned, resolved)
}

func TestAssignTwiceFails(t *testing.T) {
	m := New(WithGenerator(sequentialGenerator()))

	_, err := m.Assign(entity.KindPassageSet, "dup")
	require.NoError(t, err)

	_, err = m.Assign(entity.KindPassageSet, "dup")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
	assert.Contains(t, err.Error(), "dup")
}

func TestResolveUnknownNotFound(t *testing.T) {
	m := New()

	_, found := m.Resolve(entity.KindQuestion, "never-assigned")
	assert.False(t, found)
}

func TestKindsDoNotCollide(t *testing.T) {
	m := New(WithGenerator(sequentialGenerator()))

	// The same source identifier may legitimately appear under two kinds.
	tb, err := m.Assign(entity.KindTextbook, "same-id")
	require.NoError(t, err)
	ps, err := m.Assign(entity.KindPassageSet, "same-id")
	require.NoError(t, err)

	assert.NotEqual(t, tb, ps)
	assert.Equal(t, 1, m.Len(entity.KindTextbook))
	assert.Equal(t, 1, m.Len(entity.KindPassageSet))
}

func TestDefaultGeneratorUnique(t *testing.T) {
	m := New()

	a, err := m.Assign(entity.KindTextbook, "one")
	require.NoError(t, err)
	b, err := m.Assign(entity.KindTextbook, "two")
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestConcurrentAssign(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := m.Assign(entity.KindQuestion, fmt.Sprintf("src-%d", n)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected assign error: %v", err)
	}
	assert.Equal(t, 100, m.Len(entity.KindQuestion))
}
