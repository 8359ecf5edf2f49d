package gluaprotobuf

import (
	"testing"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func TestPreloadExposesEntryPoints(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	m, err := New(L)
	require.NoError(t, err)
	m.Preload("protobuf")

	require.NoError(t, L.DoString(`
		local pb = require("protobuf")
		assert(type(pb) == "table")
		assert(type(pb.serialize) == "function")
		assert(type(pb.deserialize) == "function")
		assert(type(pb.debugstr) == "function")
	`))
}

func TestPreloadCustomModuleName(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	m, err := New(L)
	require.NoError(t, err)
	m.Preload("my-pb")

	require.NoError(t, L.DoString(`
		local pb = require("my-pb")
		assert(type(pb.serialize) == "function")
	`))
}

func TestLoaderDirect(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	m, err := New(L)
	require.NoError(t, err)

	// Loader follows the lua.LGFunction module convention, so it can
	// be handed to PreloadModule on any name directly.
	L.PreloadModule("direct", m.Loader)
	require.NoError(t, L.DoString(`
		local pb = require("direct")
		assert(type(pb.debugstr) == "function")
	`))
}
