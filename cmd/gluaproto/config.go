package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type config struct {
	SchemaSets  []string
	ProtoFiles  []string
	ImportPaths []string
	ModuleName  string
	Script      string
}

type fileConfig struct {
	SchemaSets  []string `toml:"schema_sets"`
	ProtoFiles  []string `toml:"proto_files"`
	ImportPaths []string `toml:"import_paths"`
	ModuleName  string   `toml:"module_name"`
	Script      string   `toml:"script"`
}

func defaultConfig() config {
	return config{ModuleName: "protobuf"}
}

// loadConfig reads a TOML config file, applying defaults for anything
// the file leaves out. Paths are relative to the working directory.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("schema_sets") {
		cfg.SchemaSets = normalizePaths(raw.SchemaSets)
	}
	if meta.IsDefined("proto_files") {
		cfg.ProtoFiles = normalizePaths(raw.ProtoFiles)
	}
	if meta.IsDefined("import_paths") {
		cfg.ImportPaths = normalizePaths(raw.ImportPaths)
	}
	if meta.IsDefined("module_name") {
		name := strings.TrimSpace(raw.ModuleName)
		if name != "" {
			cfg.ModuleName = name
		}
	}
	if meta.IsDefined("script") {
		cfg.Script = strings.TrimSpace(raw.Script)
	}

	return cfg, nil
}

func normalizePaths(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
