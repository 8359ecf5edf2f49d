// Package gluaprotobuf provides Protocol Buffers support for the
// [gopher-lua] interpreter, enabling Lua code to serialize plain Lua
// tables into protobuf wire format and deserialize wire format back
// into tables, with message types resolved by name at call time.
//
// # Why Dynamic Protobuf?
//
// This package uses dynamicpb.Message and dynamic descriptor loading so
// Lua code can operate on protobuf types without Go code regeneration.
// When evaluating external Lua code, the protobuf types used by that
// code may not be known at Go compile-time. Descriptors load at runtime
// from serialized FileDescriptorSet bytes or from .proto source text,
// so scripts can construct and inspect messages the Go module was never
// compiled against.
//
// # Lua API
//
// The module registers through the standard preload mechanism and
// exposes three functions:
//
//   - pb.serialize(typeName, table) — encodes a table as the named
//     message type and returns the binary as a Lua string
//   - pb.serialize(typeName, table, callback) — instead of returning
//     bytes, hands the populated message to callback wrapped in a
//     userdata, which Go code can unwrap via [Module.UnwrapMessage];
//     the userdata is only valid until the callback returns
//   - pb.deserialize(typeName, data) — decodes a binary string into a
//     table; also callable as pb.deserialize(typeName, buffer, length)
//     where buffer is a userdata wrapping a []byte
//   - pb.debugstr(typeName, data[, mode]) — decodes binary and returns
//     its text rendering; mode is "debug", "short" (default), or "utf8"
//
// A type name that does not resolve makes all three functions return
// no values. Anything wrong with the data itself, an unknown field
// name, a value of the wrong type, or an unknown enum value name,
// raises a Lua error that pcall catches.
//
// # Type Mapping
//
// Scalar protobuf types map to Lua types:
//   - int32, sint32, sfixed32, uint32, fixed32 → number
//   - int64, sint64, sfixed64, uint64, fixed64 → number (values beyond
//     2^53 lose precision; see below)
//   - float, double → number
//   - bool → boolean
//   - string, bytes → string
//   - enum → string (the value name)
//
// Message fields map to nested tables, repeated fields to sequence
// tables, and map fields to key-value tables. On write, repeated and
// map entries append and merge into the target field rather than
// replacing it, matching protobuf merge semantics.
//
// Lua numbers are float64, so 64-bit integers with magnitude above
// 2^53 round to the nearest representable double in both directions.
// Encode such values from strings ("9007199254740993") to avoid the
// round trip through a double.
//
// # Usage
//
//	L := lua.NewState()
//	defer L.Close()
//
//	m, err := gluaprotobuf.New(L)
//	if err != nil {
//	    return err
//	}
//	if _, err := m.LoadProtoFiles([]string{"testdata"}, "addressbook.proto"); err != nil {
//	    return err
//	}
//	m.Preload("protobuf")
//
//	err = L.DoString(`
//	    local pb = require("protobuf")
//	    local data = pb.serialize("tutorial.Person", {name = "Alice", id = 7})
//	    local person = pb.deserialize("tutorial.Person", data)
//	    print(person.name, pb.debugstr("tutorial.Person", data, "short"))
//	`)
//
// # Concurrency
//
// A [Module] is bound to a single [lua.LState] and inherits its
// single-goroutine discipline. Loading descriptors while another
// goroutine runs Lua code on the same state requires external
// synchronization.
//
// [gopher-lua]: github.com/yuin/gopher-lua
package gluaprotobuf
