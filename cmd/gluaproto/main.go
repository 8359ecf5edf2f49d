// Command gluaproto runs Lua scripts with the protobuf module
// preloaded. Message schemas come from serialized descriptor sets,
// from .proto source files compiled at startup, or both, named either
// on the command line or in a TOML config file.
//
//	gluaproto -set schema.binpb script.lua
//	gluaproto -I protos -proto addressbook.proto -e 'print(require("protobuf").debugstr(...))'
//	gluaproto -config gluaproto.toml -watch script.lua
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	gluaprotobuf "github.com/joeycumines/glua-protobuf"
)

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to TOML config file")
		moduleName = flag.String("module", "", "Module name exposed to require() (default \"protobuf\")")
		expr       = flag.String("e", "", "Inline Lua chunk to run instead of a script file")
		watch      = flag.Bool("watch", false, "Re-run when the script or a loaded schema file changes")
		verbose    = flag.Bool("v", false, "Enable debug logging")

		sets     stringList
		protos   stringList
		includes stringList
	)
	flag.Var(&sets, "set", "Serialized FileDescriptorSet to load (repeatable)")
	flag.Var(&protos, "proto", "Proto source file to compile and load (repeatable)")
	flag.Var(&includes, "I", "Import path for proto files (repeatable)")
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags override the config file.
	if len(sets) > 0 {
		cfg.SchemaSets = sets
	}
	if len(protos) > 0 {
		cfg.ProtoFiles = protos
	}
	if len(includes) > 0 {
		cfg.ImportPaths = includes
	}
	if *moduleName != "" {
		cfg.ModuleName = *moduleName
	}
	if flag.NArg() > 0 {
		cfg.Script = flag.Arg(0)
	}

	if *expr == "" && cfg.Script == "" {
		fmt.Fprintln(os.Stderr, "Usage: gluaproto [-config file] [-set fds.binpb]... [-proto file.proto]... [-I dir]... [-module name] [-watch] [-v] script.lua")
		fmt.Fprintln(os.Stderr, "       gluaproto [options] -e 'lua chunk'")
		os.Exit(1)
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	a := &app{cfg: cfg, expr: *expr, log: logger}

	if err := a.runOnce(); err != nil {
		logger.Error("run failed", zap.Error(err))
		if !*watch {
			os.Exit(1)
		}
	}
	if *watch {
		if err := a.watchAndRerun(); err != nil {
			logger.Error("watch failed", zap.Error(err))
			os.Exit(1)
		}
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return logger
}

type app struct {
	cfg  config
	expr string
	log  *zap.Logger
}

// runOnce executes the configured script against a fresh interpreter
// with freshly loaded schemas, so watch-triggered reruns pick up
// schema edits.
func (a *app) runOnce() error {
	L := lua.NewState()
	defer L.Close()

	m, err := gluaprotobuf.New(L, gluaprotobuf.WithLogger(a.log))
	if err != nil {
		return err
	}

	for _, path := range a.cfg.SchemaSets {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read schema set: %w", err)
		}
		names, err := m.LoadDescriptorSetBytes(data)
		if err != nil {
			return fmt.Errorf("load schema set %s: %w", path, err)
		}
		a.log.Debug("loaded schema set", zap.String("path", path), zap.Int("types", len(names)))
	}

	if len(a.cfg.ProtoFiles) > 0 {
		names, err := m.LoadProtoFiles(a.cfg.ImportPaths, a.cfg.ProtoFiles...)
		if err != nil {
			return fmt.Errorf("load proto files: %w", err)
		}
		a.log.Debug("compiled proto files", zap.Int("types", len(names)))
	}

	m.Preload(a.cfg.ModuleName)

	if a.expr != "" {
		return L.DoString(a.expr)
	}
	return L.DoFile(a.cfg.Script)
}
