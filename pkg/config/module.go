package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	J "cuelang.org/go/encoding/json"
	"cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaFile string

//go:embed default.yaml
var DEFAULT []byte

func readFile(ctx *cue.Context, path string) (*cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".json":
		expr, err := J.Extract(path, data)
		if err != nil {
			return nil, err
		}

		value := ctx.BuildExpr(expr)
		if err := value.Err(); err != nil {
			return nil, err
		}

		return &value, nil
	case ".yaml", ".yml":
		return readYAML(ctx, path, data)
	}

	return nil, fmt.Errorf("not in a valid format")
}

func readYAML(ctx *cue.Context, name string, data []byte) (*cue.Value, error) {
	file, err := yaml.Extract(name, data)
	if err != nil {
		return nil, err
	}

	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return nil, err
	}

	return &value, nil
}

// Process reads the provided configuration files in order and unifies them
// with the schema, which supplies a default for every setting. With no
// files the embedded default configuration is used.
func Process(paths []string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaFile)
	if err := schema.Err(); err != nil {
		return nil, err
	}

	if len(paths) == 0 {
		value, err := readYAML(ctx, "<default>", DEFAULT)
		if err != nil {
			return nil, err
		}

		schema = schema.Unify(*value)
		if err := schema.Err(); err != nil {
			return nil, fmt.Errorf("invalid default config file: %w", err)
		}
	}

	for _, path := range paths {
		value, err := readFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("could not process config file %s: %w", path, err)
		}

		schema = schema.Unify(*value)
		if err := schema.Err(); err != nil {
			return nil, fmt.Errorf("could not merge config file %s: %w", path, err)
		}

		if err := schema.Validate(); err != nil {
			return nil, fmt.Errorf("config file %s is not valid: %w", path, err)
		}
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}

	data, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("could not aggregate config: %w", err)
	}

	config := Config{}
	err = json.Unmarshal(data, &config)
	return &config, err
}
