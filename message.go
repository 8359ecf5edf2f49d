package gluaprotobuf

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// messageToTable converts a message to a Lua table, walking the
// schema's fields in declaration order.
//
// Presence rule: fields without presence tracking (plain proto3
// scalars) always appear, carrying the schema default when absent on
// the wire; presence-tracked fields (sub-messages, oneof members,
// explicit optionals) appear only when set — an absent sub-message
// never fabricates a table, which also keeps self-referential schemas
// finite. Repeated and map fields always appear, possibly empty.
func (m *Module) messageToTable(msg protoreflect.Message) *lua.LTable {
	fields := msg.Descriptor().Fields()
	tbl := m.state.CreateTable(0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.HasPresence() && !msg.Has(fd) {
			continue
		}
		tbl.RawSetString(string(fd.Name()), m.readField(msg, fd))
	}
	return tbl
}

// tableToMessage writes every pair of a Lua table into msg, resolving
// each key as a schema field name. Iteration order is the guest's
// natural order. A key that names no field aborts the walk with a hard
// error; nothing written before the abort is rolled back, but every
// caller discards the message on error, so partial state never
// escapes.
func (m *Module) tableToMessage(tbl *lua.LTable, msg protoreflect.Message) error {
	fields := msg.Descriptor().Fields()
	var werr error
	tbl.ForEach(func(k, v lua.LValue) {
		if werr != nil {
			return
		}
		name, err := tableKeyToFieldName(k)
		if err != nil {
			werr = err
			return
		}
		fd := fields.ByName(protoreflect.Name(name))
		if fd == nil {
			werr = errUnknownField(name)
			return
		}
		werr = m.writeField(msg, fd, v)
	})
	return werr
}

// tableKeyToFieldName renders a table key as a field name. Numeric
// keys coerce to their printed form, matching the interpreter's
// string coercion; other key types cannot name a field.
func tableKeyToFieldName(k lua.LValue) (string, error) {
	switch k.(type) {
	case lua.LString, lua.LNumber:
		return lua.LVAsString(k), nil
	default:
		return "", &Error{
			Kind:   KindTypeMismatch,
			Detail: fmt.Sprintf("table key must be a string, got %s", k.Type()),
		}
	}
}

// messageHandle carries the message lent to a serialize callback. The
// handle is live only while the callback runs; invalidate severs the
// reference so retained userdata cannot reach the message afterwards.
type messageHandle struct {
	msg proto.Message
}

func (h *messageHandle) invalidate() {
	h.msg = nil
}

// wrapMessageHandle builds the userdata handed to serialize callbacks.
func wrapMessageHandle(L *lua.LState, msg proto.Message) (*lua.LUserData, *messageHandle) {
	h := &messageHandle{msg: msg}
	ud := L.NewUserData()
	ud.Value = h
	return ud, h
}

// unwrapMessageHandle extracts the message from a live callback
// handle. It reports false for anything else, including a handle
// whose serialize call has already returned.
func unwrapMessageHandle(lv lua.LValue) (proto.Message, bool) {
	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return nil, false
	}
	h, ok := ud.Value.(*messageHandle)
	if !ok || h.msg == nil {
		return nil, false
	}
	return h.msg, true
}
