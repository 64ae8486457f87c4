package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Load reads a configuration file, applies defaults and validates it.
// Files ending in .cue are evaluated as CUE against the embedded schema;
// anything else is YAML. YAML files support ${VAR} environment expansion.
//
// Defaults fill only the keys a file leaves out: an explicit zero is kept
// and rejected by Validate.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: read %s: %w", path, err)
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".cue":
		cfg, err = parseCUE(path, data)
	default:
		cfg, err = parseYAML(data)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

func parseYAML(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	// Decoding over the defaults leaves absent keys at their default.
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// An empty document decodes to io.EOF; that is an all-defaults config.
		if errors.Is(err, io.EOF) {
			return Default(), nil
		}
		return Config{}, err
	}
	return cfg, nil
}

func parseCUE(path string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return Config{}, cueError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, cueError(err)
	}

	// The schema rejects zero values, so a zero field here was left out.
	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, cueError(err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// cueError flattens a CUE error list into one readable error.
func cueError(err error) error {
	return fmt.Errorf("%s", cueerrors.Details(err, nil))
}
