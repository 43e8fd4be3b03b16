package backup

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed descriptor.cue
var descriptorCUE string

// descriptorFile is the manifest written at the root of a full backup bundle.
const descriptorFile = "backup.json"

// Descriptor records what a full backup bundle contains. It is validated on
// read so a truncated or hand-edited bundle is caught before a restore
// trusts it.
type Descriptor struct {
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	Database      string    `json:"database"`
	DatabaseBytes int64     `json:"database_bytes"`
	Checksum      string    `json:"checksum"`
	FilesArchive  string    `json:"files_archive,omitempty"`
	FileCount     int       `json:"file_count"`
}

func writeDescriptor(bundleDir string, desc Descriptor) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(desc); err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}
	path := filepath.Join(bundleDir, descriptorFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	return nil
}

func readDescriptor(bundleDir string) (*Descriptor, error) {
	path := filepath.Join(bundleDir, descriptorFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	schema, err := compileDescriptorSchema()
	if err != nil {
		return nil, err
	}
	if err := cuejson.Validate(data, schema); err != nil {
		return nil, fmt.Errorf("invalid descriptor %s: %w", path, err)
	}

	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor %s: %w", path, err)
	}
	return &desc, nil
}

func compileDescriptorSchema() (cue.Value, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(descriptorCUE, cue.Filename("descriptor.cue"))
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to compile descriptor schema: %w", err)
	}
	schema := val.LookupPath(cue.ParsePath("#Descriptor"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("descriptor schema missing #Descriptor: %w", err)
	}
	return schema, nil
}

// sha256File returns the hex digest of the file's contents.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
