package entity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Domain prefixes for content digests. Version suffix enables future
// algorithm migration without colliding with old digests.
const (
	domainTextbook      = "yurichat/textbook/v1"
	domainPassageSet    = "yurichat/passage_set/v1"
	domainQuestion      = "yurichat/question/v1"
	domainPrompt        = "yurichat/system_prompt/v1"
	domainPromptVersion = "yurichat/system_prompt_version/v1"
)

// Content digests cover translated field values only. Identifiers are
// excluded: target IDs are freshly assigned during migration, so a digest
// computed on the source side and one recomputed from target rows must agree
// on content alone. Foreign keys (Question.PassageSetID) are identifiers too
// and are likewise excluded.

// ContentDigest returns a stable digest of the textbook's content fields.
func (t Textbook) ContentDigest() string {
	n := t.Normalized()
	return hashWithDomain(domainTextbook, canonicalJSON([]field{
		{"created_at", n.CreatedAt},
		{"grade", n.Grade},
		{"level", n.Level},
		{"publisher", n.Publisher},
		{"subject", n.Subject},
		{"title", n.Title},
		{"updated_at", n.UpdatedAt},
	}))
}

// ContentDigest returns a stable digest of the passage set's content fields.
func (p PassageSet) ContentDigest() string {
	n := p.Normalized()
	return hashWithDomain(domainPassageSet, canonicalJSON([]field{
		{"access_code", n.AccessCode},
		{"commentary", n.Commentary},
		{"created_at", n.CreatedAt},
		{"passage", n.Passage},
		{"title", n.Title},
		{"updated_at", n.UpdatedAt},
	}))
}

// ContentDigest returns a stable digest of the question's content fields.
func (q Question) ContentDigest() string {
	n := q.Normalized()
	return hashWithDomain(domainQuestion, canonicalJSON([]field{
		{"answer", n.Answer},
		{"created_at", n.CreatedAt},
		{"explanation", n.Explanation},
		{"options", n.Options},
		{"position", n.Position},
		{"prompt", n.Prompt},
		{"updated_at", n.UpdatedAt},
	}))
}

// ContentDigest returns a stable digest of the prompt. The natural key is
// content, not a generated identifier, so it participates.
func (sp SystemPrompt) ContentDigest() string {
	n := sp.Normalized()
	return hashWithDomain(domainPrompt, canonicalJSON([]field{
		{"active", n.Active},
		{"content", n.Content},
		{"created_at", n.CreatedAt},
		{"description", n.Description},
		{"key", n.Key},
		{"name", n.Name},
		{"updated_at", n.UpdatedAt},
		{"version", n.Version},
	}))
}

// ContentDigest returns a stable digest of the prompt version snapshot.
func (v SystemPromptVersion) ContentDigest() string {
	n := v.Normalized()
	return hashWithDomain(domainPromptVersion, canonicalJSON([]field{
		{"author", n.Author},
		{"content", n.Content},
		{"created_at", n.CreatedAt},
		{"prompt_key", n.PromptKey},
		{"version", n.Version},
	}))
}

// DigestSet accumulates per-record content digests by kind and reduces each
// kind to a single order-independent digest. Safe for concurrent use.
type DigestSet struct {
	mu     sync.Mutex
	byKind map[Kind][]string
}

// NewDigestSet returns an empty digest set.
func NewDigestSet() *DigestSet {
	return &DigestSet{byKind: make(map[Kind][]string)}
}

// Add records a per-record digest under the given kind.
func (s *DigestSet) Add(kind Kind, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKind[kind] = append(s.byKind[kind], digest)
}

// Count returns the number of digests recorded for the kind.
func (s *DigestSet) Count(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKind[kind])
}

// Sum reduces the kind's digests to one hex digest. Digests are sorted first,
// so insertion order does not matter; duplicate records stay significant
// (multiset equality).
func (s *DigestSet) Sum(kind Kind) string {
	s.mu.Lock()
	digests := make([]string, len(s.byKind[kind]))
	copy(digests, s.byKind[kind])
	s.mu.Unlock()

	sort.Strings(digests)
	h := sha256.New()
	for _, d := range digests {
		h.Write([]byte(d))
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// field is one key/value pair of a canonical JSON object. Callers list
// fields pre-sorted by key; canonicalJSON preserves the given order.
type field struct {
	key string
	val any
}

// canonicalJSON renders fields as a deterministic JSON object: NFC-normalized
// strings, no HTML escaping, UTC RFC 3339 timestamps. Digest material only,
// never parsed back.
func canonicalJSON(fields []field) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(canonicalString(f.key))
		buf.WriteByte(':')
		buf.Write(canonicalValue(f.val))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func canonicalValue(v any) []byte {
	switch val := v.(type) {
	case string:
		return canonicalString(val)
	case int:
		return []byte(strconv.Itoa(val))
	case bool:
		return []byte(strconv.FormatBool(val))
	case time.Time:
		return canonicalString(val.UTC().Format(time.RFC3339Nano))
	case []string:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(canonicalString(s))
		}
		buf.WriteByte(']')
		return buf.Bytes()
	default:
		panic(fmt.Sprintf("unsupported type for canonical JSON: %T", v))
	}
}

// canonicalString encodes a string with NFC normalization and HTML escaping
// disabled, so digests do not depend on Go's JavaScript-safety escapes.
func canonicalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(NormalizeText(s)); err != nil {
		// Strings and the fixed field set above cannot fail to encode.
		panic(err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null byte prevents boundary ambiguity
// between domain and payload.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
