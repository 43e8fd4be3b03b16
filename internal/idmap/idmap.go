// Package idmap tracks the correspondence between source document identifiers
// and freshly assigned target row identifiers for one migration run. The
// mapping lives in memory only; it is rebuilt from scratch on every run and
// is never persisted.
package idmap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
)

// ErrAlreadyAssigned reports a second assignment for a source identity that
// already has a target identifier.
var ErrAlreadyAssigned = errors.New("source identity already assigned")

// Generator produces new target identifiers. The default is uuid.NewString.
type Generator func() string

// Mapper assigns and resolves target identifiers per kind. Safe for
// concurrent use.
type Mapper struct {
	mu      sync.Mutex
	gen     Generator
	entries map[entity.Kind]map[string]string
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithGenerator replaces the identifier generator. Tests use this for
// deterministic identifiers.
func WithGenerator(gen Generator) Option {
	return func(m *Mapper) { m.gen = gen }
}

// New returns an empty Mapper.
func New(opts ...Option) *Mapper {
	m := &Mapper{
		gen:     uuid.NewString,
		entries: make(map[entity.Kind]map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Assign generates a target identifier for the source identity and records
// the pair. Assigning the same identity twice is an error: it signals a
// duplicate read from the source, which must surface rather than silently
// remap.
func (m *Mapper) Assign(kind entity.Kind, sourceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := m.entries[kind]
	if byID == nil {
		byID = make(map[string]string)
		m.entries[kind] = byID
	}
	if existing, ok := byID[sourceID]; ok {
		return "", fmt.Errorf("%w: %s %q already mapped to %q", ErrAlreadyAssigned, kind, sourceID, existing)
	}

	targetID := m.gen()
	byID[sourceID] = targetID
	return targetID, nil
}

// Resolve returns the target identifier recorded for the source identity.
// found is false when the identity was never assigned; callers decide whether
// that is a skip or an error.
func (m *Mapper) Resolve(kind entity.Kind, sourceID string) (targetID string, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	targetID, found = m.entries[kind][sourceID]
	return targetID, found
}

// Len returns the number of assignments recorded for the kind.
func (m *Mapper) Len(kind entity.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[kind])
}
