// Package config loads and validates the yurictl configuration file.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the resolved configuration for all commands. Flag values
// override individual fields after loading.
type Config struct {
	Source Source `yaml:"source"`
	Target Target `yaml:"target"`
	Backup Backup `yaml:"backup"`
	Cloud  Cloud  `yaml:"cloud"`
}

// Source locates the document database that migration reads from.
type Source struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Target locates the SQLite database that migration writes into.
type Target struct {
	DBPath string `yaml:"db_path"`
}

// Backup controls snapshot placement and retention.
type Backup struct {
	Dir      string `yaml:"dir"`
	FilesDir string `yaml:"files_dir"`
	Keep     int    `yaml:"keep"`
}

// Cloud controls optional off-site upload of backup artifacts.
type Cloud struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// Default returns the configuration used when no file is given. Paths are
// relative to the working directory.
func Default() *Config {
	return &Config{
		Source: Source{URI: "mongodb://localhost:27017/yurichatbot"},
		Target: Target{DBPath: "data/chatbot.db"},
		Backup: Backup{Dir: "backups", FilesDir: "uploads", Keep: 7},
	}
}

// Load reads a YAML configuration file, checks it against the embedded
// schema, and merges it over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if err := cueyaml.Validate(data, schema); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// compileSchema builds the embedded CUE schema once per load. Compilation
// failure means the binary shipped with a broken schema, so the error is
// deliberately loud.
func compileSchema() (cue.Value, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile config schema: %w", err)
	}

	schema := val.LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("config schema missing #Config: %w", err)
	}
	return schema, nil
}
