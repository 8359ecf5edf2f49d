package gluaprotobuf

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// luaSerialize is the Lua-facing implementation of
// pb.serialize(typeName, value, callback). value may be a table whose
// entries populate the message, a callback function, or nil for an
// empty message. With a callback the populated message is handed to it
// wrapped in a userdata instead of being encoded; the userdata is only
// valid until the callback returns. Without one the encoded bytes come
// back as a Lua string. An unresolvable type name returns no values.
func (m *Module) luaSerialize(L *lua.LState) int {
	name := L.CheckString(1)

	md, err := m.findMessageDescriptor(protoreflect.FullName(name))
	if err != nil {
		m.log.Debug("serialize: message type not found", zap.String("type", name))
		return 0
	}

	var (
		tbl      *lua.LTable
		callback *lua.LFunction
	)
	switch v := L.Get(2).(type) {
	case *lua.LTable:
		tbl = v
	case *lua.LFunction:
		callback = v
	case *lua.LNilType:
	default:
		L.RaiseError("%s", errBadArgument(fmt.Sprintf(
			"serialize: argument #2 must be a table or function, got %s", v.Type())))
		return 0
	}
	if callback == nil {
		if fn, ok := L.Get(3).(*lua.LFunction); ok {
			callback = fn
		}
	}

	msg := dynamicpb.NewMessage(md)
	if tbl != nil {
		if err := m.tableToMessage(tbl, msg); err != nil {
			L.RaiseError("%s", err)
			return 0
		}
	}

	if callback != nil {
		ud, handle := wrapMessageHandle(L, msg)
		defer handle.invalidate()
		// Errors raised inside the callback unwind through this call
		// to the guest's enclosing pcall; the deferred invalidate
		// still runs.
		L.CallByParam(lua.P{Fn: callback, NRet: 0, Protect: false}, ud)
		return 0
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		L.RaiseError("serialize %s: %s", name, err)
		return 0
	}
	m.log.Debug("serialize", zap.String("type", name), zap.Int("bytes", len(data)))

	L.Push(lua.LString(data))
	return 1
}

// luaDeserialize is the Lua-facing implementation of
// pb.deserialize(typeName, data) and pb.deserialize(typeName, buffer,
// length). It decodes the payload into a fresh message of the given
// type and returns it converted to a table. An unresolvable type name
// returns no values.
func (m *Module) luaDeserialize(L *lua.LState) int {
	name := L.CheckString(1)

	md, err := m.findMessageDescriptor(protoreflect.FullName(name))
	if err != nil {
		m.log.Debug("deserialize: message type not found", zap.String("type", name))
		return 0
	}

	data, _, err := m.extractPayload(L, 2)
	if err != nil {
		L.RaiseError("%s", err)
		return 0
	}

	msg := dynamicpb.NewMessage(md)
	m.unmarshalBestEffort(name, data, msg)
	m.log.Debug("deserialize", zap.String("type", name), zap.Int("bytes", len(data)))

	L.Push(m.messageToTable(msg))
	return 1
}

// luaDebugString is the Lua-facing implementation of
// pb.debugstr(typeName, data, mode) and pb.debugstr(typeName, buffer,
// length, mode). It decodes the payload and returns its text rendering
// in the requested mode ("debug", "short", or "utf8"; default
// "short"). An unresolvable type name returns no values.
func (m *Module) luaDebugString(L *lua.LState) int {
	name := L.CheckString(1)

	md, err := m.findMessageDescriptor(protoreflect.FullName(name))
	if err != nil {
		m.log.Debug("debugstr: message type not found", zap.String("type", name))
		return 0
	}

	data, next, err := m.extractPayload(L, 2)
	if err != nil {
		L.RaiseError("%s", err)
		return 0
	}

	mode := renderModeShort
	if lv := L.Get(next); lv != lua.LNil {
		s, ok := lv.(lua.LString)
		if !ok {
			L.RaiseError("%s", errBadArgument(fmt.Sprintf(
				"debugstr: argument #%d must be a mode string, got %s", next, lv.Type())))
			return 0
		}
		mode, err = parseRenderMode(string(s))
		if err != nil {
			L.RaiseError("%s", err)
			return 0
		}
	}

	msg := dynamicpb.NewMessage(md)
	m.unmarshalBestEffort(name, data, msg)

	L.Push(lua.LString(renderMessage(msg, mode)))
	return 1
}

// unmarshalBestEffort decodes data into msg, keeping whatever fields
// decoded cleanly when the payload is truncated or malformed. The
// guest always gets a message to inspect; corruption shows up as
// missing fields, not as an error.
func (m *Module) unmarshalBestEffort(name string, data []byte, msg proto.Message) {
	if err := proto.Unmarshal(data, msg); err != nil {
		m.log.Debug("partial decode",
			zap.String("type", name),
			zap.Int("bytes", len(data)),
			zap.Error(err))
	}
}
