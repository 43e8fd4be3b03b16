package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// marshalOptions serializes answer options to the single JSON text column.
// HTML escaping is disabled so Korean text and comparison operators survive
// byte-for-byte. A question with no options stores "[]", never NULL.
func marshalOptions(options []string) (string, error) {
	if options == nil {
		options = []string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(options); err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}

	// Encoder appends a newline; the column stores the bare array.
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalOptions parses the options column back into a slice. Always
// returns a non-nil slice for valid input.
func unmarshalOptions(raw string) ([]string, error) {
	var options []string
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	if options == nil {
		options = []string{}
	}
	return options, nil
}

// formatTime renders a timestamp for storage. UTC keeps comparisons and
// digests independent of the host timezone.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
