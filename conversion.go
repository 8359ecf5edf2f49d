package gluaprotobuf

import (
	"math"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Bounds for converting Lua numbers (float64) to the integral field
// kinds. 2^63 and 2^64 are exactly representable; the first value at
// or beyond each bound no longer fits the target type.
const (
	maxInt64AsFloat  = float64(1 << 63)
	minInt64AsFloat  = -float64(1 << 63)
	maxUint64AsFloat = float64(1 << 64)
)

// enumReadPlaceholder is produced when a decoded enum field holds a
// number the schema defines no symbol for. Using a placeholder in both
// singular and repeated positions keeps list indices aligned and never
// silently drops a key.
const enumReadPlaceholder = "error enum"

// protoValueToLua converts a protobuf [protoreflect.Value] to a
// [lua.LValue], using the field descriptor to determine the
// appropriate Lua type.
func (m *Module) protoValueToLua(val protoreflect.Value, fd protoreflect.FieldDescriptor) lua.LValue {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return lua.LBool(val.Bool())

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		// Lua numbers are float64; int64 magnitudes beyond 2^53
		// lose precision here, same as the interpreter itself.
		return lua.LNumber(val.Int())

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return lua.LNumber(val.Uint())

	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return lua.LNumber(val.Float())

	case protoreflect.StringKind:
		return lua.LString(val.String())

	case protoreflect.BytesKind:
		return lua.LString(val.Bytes())

	case protoreflect.EnumKind:
		return enumNumberToLua(val.Enum(), fd)

	case protoreflect.MessageKind, protoreflect.GroupKind:
		return m.messageToTable(val.Message())

	default:
		return lua.LNil
	}
}

// enumNumberToLua renders an enum number as its symbolic name.
func enumNumberToLua(num protoreflect.EnumNumber, fd protoreflect.FieldDescriptor) lua.LValue {
	evd := fd.Enum().Values().ByNumber(num)
	if evd == nil {
		return lua.LString(enumReadPlaceholder)
	}
	return lua.LString(evd.Name())
}

// luaToProtoValue converts a [lua.LValue] to a [protoreflect.Value],
// using the field descriptor to determine the target proto type. This
// handles scalar values and whole sub-messages (a fresh message is
// built for the message kinds, which is what list elements and map
// values need); singular message fields go through
// [Module.writeSingularField] instead so repeated writes merge into
// the existing sub-message.
func (m *Module) luaToProtoValue(lv lua.LValue, fd protoreflect.FieldDescriptor) (protoreflect.Value, error) {
	name := string(fd.Name())

	switch fd.Kind() {
	case protoreflect.BoolKind:
		// Any Lua value coerces by truthiness: nil and false are
		// false, everything else is true.
		return protoreflect.ValueOfBool(lua.LVAsBool(lv)), nil

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		v, err := luaToInt64(name, lv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return protoreflect.Value{}, errOverflow(name, v, "int32")
		}
		return protoreflect.ValueOfInt32(int32(v)), nil

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		v, err := luaToInt64(name, lv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt64(v), nil

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		v, err := luaToUint64(name, lv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		if v > math.MaxUint32 {
			return protoreflect.Value{}, errOverflow(name, v, "uint32")
		}
		return protoreflect.ValueOfUint32(uint32(v)), nil

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		v, err := luaToUint64(name, lv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint64(v), nil

	case protoreflect.FloatKind:
		f, err := luaToNumber(name, lv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil

	case protoreflect.DoubleKind:
		f, err := luaToNumber(name, lv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat64(f), nil

	case protoreflect.StringKind:
		s, err := luaToString(name, lv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfString(s), nil

	case protoreflect.BytesKind:
		s, err := luaToString(name, lv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfBytes([]byte(s)), nil

	case protoreflect.EnumKind:
		return luaToProtoEnum(lv, fd)

	case protoreflect.MessageKind, protoreflect.GroupKind:
		tbl, ok := lv.(*lua.LTable)
		if !ok {
			return protoreflect.Value{}, errTypeMismatch(name, "table", lv.Type().String())
		}
		sub := dynamicpb.NewMessage(fd.Message())
		if err := m.tableToMessage(tbl, sub); err != nil {
			return protoreflect.Value{}, withPath(err, name, KindTypeMismatch)
		}
		return protoreflect.ValueOfMessage(sub), nil

	default:
		return protoreflect.Value{}, errTypeMismatch(name, "supported field kind", fd.Kind().String())
	}
}

// luaToNumber applies Lua's number coercion: numbers pass through,
// strings parse if they spell a number, everything else is a
// type mismatch.
func luaToNumber(field string, lv lua.LValue) (float64, error) {
	switch v := lv.(type) {
	case lua.LNumber:
		return float64(v), nil
	case lua.LString:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return 0, errTypeMismatch(field, "number", "string "+strconv.Quote(string(v)))
		}
		return f, nil
	default:
		return 0, errTypeMismatch(field, "number", lv.Type().String())
	}
}

// luaToInt64 converts a Lua value to int64, truncating fractional
// input toward zero as the interpreter's own integer coercion does.
// String input parses as a decimal integer first, so values beyond
// 2^53 keep full precision instead of rounding through a double.
func luaToInt64(field string, lv lua.LValue) (int64, error) {
	if s, ok := lv.(lua.LString); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := luaToNumber(field, lv)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= maxInt64AsFloat || f < minInt64AsFloat {
		return 0, errOverflow(field, f, "int64")
	}
	return int64(f), nil
}

// luaToUint64 converts a Lua value to uint64, rejecting negatives.
// As with [luaToInt64], integral string input keeps full precision.
func luaToUint64(field string, lv lua.LValue) (uint64, error) {
	if s, ok := lv.(lua.LString); ok {
		if n, err := strconv.ParseUint(strings.TrimSpace(string(s)), 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := luaToNumber(field, lv)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, errOverflow(field, f, "unsigned field (negative)")
	}
	if math.IsNaN(f) || f >= maxUint64AsFloat {
		return 0, errOverflow(field, f, "uint64")
	}
	return uint64(f), nil
}

// luaToString applies Lua's string coercion: strings pass through and
// numbers format as the interpreter would print them.
func luaToString(field string, lv lua.LValue) (string, error) {
	switch lv.(type) {
	case lua.LString, lua.LNumber:
		return lua.LVAsString(lv), nil
	default:
		return "", errTypeMismatch(field, "string", lv.Type().String())
	}
}

// luaToProtoEnum converts a symbolic enum name to its number. Only
// strings are accepted, and the symbol must exist: an unrecognized
// name is a hard error whether the field is singular or repeated.
func luaToProtoEnum(lv lua.LValue, fd protoreflect.FieldDescriptor) (protoreflect.Value, error) {
	name := string(fd.Name())
	s, ok := lv.(lua.LString)
	if !ok {
		return protoreflect.Value{}, errTypeMismatch(name, "enum name string", lv.Type().String())
	}
	enumDesc := fd.Enum()
	evd := enumDesc.Values().ByName(protoreflect.Name(s))
	if evd == nil {
		return protoreflect.Value{}, errUnknownEnum(name, string(s), string(enumDesc.FullName()))
	}
	return protoreflect.ValueOfEnum(evd.Number()), nil
}

// luaToProtoMapKey converts a Lua table key to a [protoreflect.MapKey],
// applying the same coercions as the scalar paths.
func luaToProtoMapKey(field string, lv lua.LValue, fd protoreflect.FieldDescriptor) (protoreflect.MapKey, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		// Lua table keys keep their type, so true/false arrive as
		// booleans; anything else coerces by truthiness.
		return protoreflect.ValueOfBool(lua.LVAsBool(lv)).MapKey(), nil

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		v, err := luaToInt64(field, lv)
		if err != nil {
			return protoreflect.MapKey{}, err
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return protoreflect.MapKey{}, errOverflow(field, v, "int32 map key")
		}
		return protoreflect.ValueOfInt32(int32(v)).MapKey(), nil

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		v, err := luaToInt64(field, lv)
		if err != nil {
			return protoreflect.MapKey{}, err
		}
		return protoreflect.ValueOfInt64(v).MapKey(), nil

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		v, err := luaToUint64(field, lv)
		if err != nil {
			return protoreflect.MapKey{}, err
		}
		if v > math.MaxUint32 {
			return protoreflect.MapKey{}, errOverflow(field, v, "uint32 map key")
		}
		return protoreflect.ValueOfUint32(uint32(v)).MapKey(), nil

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		v, err := luaToUint64(field, lv)
		if err != nil {
			return protoreflect.MapKey{}, err
		}
		return protoreflect.ValueOfUint64(v).MapKey(), nil

	case protoreflect.StringKind:
		s, err := luaToString(field, lv)
		if err != nil {
			return protoreflect.MapKey{}, err
		}
		return protoreflect.ValueOfString(s).MapKey(), nil

	default:
		return protoreflect.MapKey{}, errMapEntrySchema(field, "unsupported map key kind: "+fd.Kind().String())
	}
}

// mapKeyToLua converts a [protoreflect.MapKey] to a Lua table key,
// produced the same way the equivalent singular scalar would be.
func mapKeyToLua(mk protoreflect.MapKey, fd protoreflect.FieldDescriptor) lua.LValue {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return lua.LBool(mk.Bool())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return lua.LNumber(mk.Int())
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return lua.LNumber(mk.Uint())
	case protoreflect.StringKind:
		return lua.LString(mk.String())
	default:
		return lua.LString(mk.String())
	}
}
