package gluaprotobuf

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// readField converts one field's current value to its Lua
// representation, dispatching on cardinality. Reads cannot fail: enum
// numbers without a symbol render as a placeholder, and the structural
// guarantees of [protoreflect] make a malformed map entry unreachable
// on this path.
func (m *Module) readField(msg protoreflect.Message, fd protoreflect.FieldDescriptor) lua.LValue {
	switch {
	case fd.IsMap():
		return m.readMapField(msg, fd)
	case fd.IsList():
		return m.readListField(msg, fd)
	default:
		return m.protoValueToLua(msg.Get(fd), fd)
	}
}

// writeField writes one Lua value into a message field, dispatching on
// cardinality.
func (m *Module) writeField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, lv lua.LValue) error {
	switch {
	case fd.IsMap():
		return m.writeMapField(msg, fd, lv)
	case fd.IsList():
		return m.writeListField(msg, fd, lv)
	default:
		return m.writeSingularField(msg, fd, lv)
	}
}

// writeSingularField writes a singular field. Scalar kinds overwrite
// the previous value; message kinds merge into the existing
// sub-message slot, so repeated content written across multiple walks
// accumulates there just as it does for repeated fields.
func (m *Module) writeSingularField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, lv lua.LValue) error {
	if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
		name := string(fd.Name())
		tbl, ok := lv.(*lua.LTable)
		if !ok {
			return errTypeMismatch(name, "table", lv.Type().String())
		}
		sub := msg.Mutable(fd).Message()
		if err := m.tableToMessage(tbl, sub); err != nil {
			return withPath(err, name, KindTypeMismatch)
		}
		return nil
	}

	pv, err := m.luaToProtoValue(lv, fd)
	if err != nil {
		return err
	}
	msg.Set(fd, pv)
	return nil
}

// readListField builds a 1-based sequence table from a repeated field.
func (m *Module) readListField(msg protoreflect.Message, fd protoreflect.FieldDescriptor) *lua.LTable {
	list := msg.Get(fd).List()
	tbl := m.state.CreateTable(list.Len(), 0)
	for i := 0; i < list.Len(); i++ {
		tbl.RawSetInt(i+1, m.protoValueToLua(list.Get(i), fd))
	}
	return tbl
}

// writeListField appends the contiguous 1..n elements of a sequence
// table to a repeated field. Appending is deliberate: pre-existing
// elements are retained, which is why running the same walk twice
// doubles repeated content.
func (m *Module) writeListField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, lv lua.LValue) error {
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return errTypeMismatch(string(fd.Name()), "sequence table", lv.Type().String())
	}

	list := msg.Mutable(fd).List()
	n := tbl.Len()
	for i := 1; i <= n; i++ {
		pv, err := m.luaToProtoValue(tbl.RawGetInt(i), fd)
		if err != nil {
			return err
		}
		list.Append(pv)
	}
	return nil
}

// validateMapField checks the synthetic entry schema of a map field:
// the entry must be modeled as a message carrying exactly the two
// fields key and value. protodesc-built descriptors always satisfy
// this; the guard matters for hand-implemented descriptors.
func validateMapField(fd protoreflect.FieldDescriptor) error {
	name := string(fd.Name())
	entry := fd.Message()
	if entry == nil {
		return errMapValueKind(name)
	}
	fields := entry.Fields()
	if fields.Len() != 2 || fields.ByName("key") == nil || fields.ByName("value") == nil {
		return errMapEntrySchema(name, fmt.Sprintf("map entry %s must have exactly key and value fields", entry.FullName()))
	}
	return nil
}

// readMapField builds an associative table from a map field. Keys are
// rendered the same way the equivalent singular scalar would be.
func (m *Module) readMapField(msg protoreflect.Message, fd protoreflect.FieldDescriptor) *lua.LTable {
	keyDesc := fd.MapKey()
	valDesc := fd.MapValue()
	protoMap := msg.Get(fd).Map()
	tbl := m.state.CreateTable(0, protoMap.Len())
	protoMap.Range(func(mk protoreflect.MapKey, v protoreflect.Value) bool {
		tbl.RawSet(mapKeyToLua(mk, keyDesc), m.protoValueToLua(v, valDesc))
		return true
	})
	return tbl
}

// writeMapField stores the pairs of an associative table into a map
// field, iterating in the guest's natural order.
func (m *Module) writeMapField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, lv lua.LValue) error {
	name := string(fd.Name())
	if err := validateMapField(fd); err != nil {
		return err
	}

	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return errTypeMismatch(name, "table", lv.Type().String())
	}

	keyDesc := fd.MapKey()
	valDesc := fd.MapValue()
	protoMap := msg.Mutable(fd).Map()

	var werr error
	tbl.ForEach(func(k, v lua.LValue) {
		if werr != nil {
			return
		}
		mk, err := luaToProtoMapKey(name, k, keyDesc)
		if err != nil {
			werr = err
			return
		}
		mv, err := m.luaToProtoValue(v, valDesc)
		if err != nil {
			// The value descriptor is named "value"; prefix the
			// user-visible field name so the path reads outermost
			// first.
			werr = withPath(err, name, KindTypeMismatch)
			return
		}
		protoMap.Set(mk, mv)
	})
	return werr
}
