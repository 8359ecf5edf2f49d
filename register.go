package gluaprotobuf

import (
	lua "github.com/yuin/gopher-lua"
)

// Loader is a [lua.LGFunction] that builds the module's export table.
// The integrator registers it under whatever module name they choose:
//
//	m, err := gluaprotobuf.New(L)
//	if err != nil { ... }
//	L.PreloadModule("protobuf", m.Loader)
//
// After registration, Lua code loads the module by name:
//
//	local pb = require("protobuf")
func (m *Module) Loader(L *lua.LState) int {
	exports := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"serialize":   m.luaSerialize,
		"deserialize": m.luaDeserialize,
		"debugstr":    m.luaDebugString,
	})
	L.Push(exports)
	return 1
}

// Preload registers the module under name on the bound state, so a
// subsequent require(name) in Lua returns the export table.
func (m *Module) Preload(name string) {
	m.state.PreloadModule(name, m.Loader)
}
