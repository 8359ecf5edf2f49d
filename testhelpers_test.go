package gluaprotobuf

import (
	"testing"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

type testEnv struct {
	L *lua.LState
	m *Module
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)
	m, err := New(L)
	require.NoError(t, err)
	_, err = m.loadDescriptorSetBytes(testDescriptorSetBytes())
	require.NoError(t, err)
	m.Preload("protobuf")
	require.NoError(t, L.DoString(`pb = require("protobuf")`))
	return &testEnv{L: L, m: m}
}

// run executes a Lua chunk and returns its first return value, or
// LNil when the chunk returns nothing.
func (e *testEnv) run(t *testing.T, code string) lua.LValue {
	t.Helper()
	base := e.L.GetTop()
	require.NoError(t, e.L.DoString(code))
	if e.L.GetTop() > base {
		v := e.L.Get(base + 1)
		e.L.SetTop(base)
		return v
	}
	return lua.LNil
}

func (e *testEnv) mustFail(t *testing.T, code string) error {
	t.Helper()
	err := e.L.DoString(code)
	require.Error(t, err)
	return err
}

func (e *testEnv) mustFailContains(t *testing.T, code, substr string) {
	t.Helper()
	err := e.mustFail(t, code)
	require.Contains(t, err.Error(), substr)
}

func testDescriptorSetBytes() []byte {
	data, err := proto.Marshal(testFileDescriptorSet())
	if err != nil {
		panic("testDescriptorSetBytes: " + err.Error())
	}
	return data
}

func testFileDescriptorSet() *descriptorpb.FileDescriptorSet {
	return &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{testFileDescriptorProto()},
	}
}

func testFileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test.proto"),
		Package: proto.String("test"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Color"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("COLOR_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("RED"), Number: proto.Int32(1)},
				{Name: proto.String("GREEN"), Number: proto.Int32(2)},
				{Name: proto.String("BLUE"), Number: proto.Int32(3)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			innerDesc(),
			scalarsDesc(),
			outerDesc(),
			choiceDesc(),
			listsDesc(),
			mapsDesc(),
			personDesc(),
		},
	}
}

func innerDesc() *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String("Inner"),
		Field: []*descriptorpb.FieldDescriptorProto{{
			Name: proto.String("value"), Number: proto.Int32(1),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			JsonName: proto.String("value"),
		}},
	}
}

func scalarsDesc() *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String("Scalars"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("int32_val"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("int32Val")},
			{Name: proto.String("int64_val"), Number: proto.Int32(2), Type: descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("int64Val")},
			{Name: proto.String("uint32_val"), Number: proto.Int32(3), Type: descriptorpb.FieldDescriptorProto_TYPE_UINT32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("uint32Val")},
			{Name: proto.String("uint64_val"), Number: proto.Int32(4), Type: descriptorpb.FieldDescriptorProto_TYPE_UINT64.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("uint64Val")},
			{Name: proto.String("sint32_val"), Number: proto.Int32(5), Type: descriptorpb.FieldDescriptorProto_TYPE_SINT32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("sint32Val")},
			{Name: proto.String("sint64_val"), Number: proto.Int32(6), Type: descriptorpb.FieldDescriptorProto_TYPE_SINT64.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("sint64Val")},
			{Name: proto.String("fixed32_val"), Number: proto.Int32(7), Type: descriptorpb.FieldDescriptorProto_TYPE_FIXED32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("fixed32Val")},
			{Name: proto.String("fixed64_val"), Number: proto.Int32(8), Type: descriptorpb.FieldDescriptorProto_TYPE_FIXED64.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("fixed64Val")},
			{Name: proto.String("sfixed32_val"), Number: proto.Int32(9), Type: descriptorpb.FieldDescriptorProto_TYPE_SFIXED32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("sfixed32Val")},
			{Name: proto.String("sfixed64_val"), Number: proto.Int32(10), Type: descriptorpb.FieldDescriptorProto_TYPE_SFIXED64.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("sfixed64Val")},
			{Name: proto.String("float_val"), Number: proto.Int32(11), Type: descriptorpb.FieldDescriptorProto_TYPE_FLOAT.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("floatVal")},
			{Name: proto.String("double_val"), Number: proto.Int32(12), Type: descriptorpb.FieldDescriptorProto_TYPE_DOUBLE.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("doubleVal")},
			{Name: proto.String("bool_val"), Number: proto.Int32(13), Type: descriptorpb.FieldDescriptorProto_TYPE_BOOL.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("boolVal")},
			{Name: proto.String("string_val"), Number: proto.Int32(14), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("stringVal")},
			{Name: proto.String("bytes_val"), Number: proto.Int32(15), Type: descriptorpb.FieldDescriptorProto_TYPE_BYTES.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("bytesVal")},
			{Name: proto.String("color"), Number: proto.Int32(16), Type: descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum(), TypeName: proto.String(".test.Color"), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("color")},
			{Name: proto.String("opt_note"), Number: proto.Int32(17), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("optNote"), Proto3Optional: proto.Bool(true), OneofIndex: proto.Int32(0)},
		},
		OneofDecl: []*descriptorpb.OneofDescriptorProto{
			{Name: proto.String("_opt_note")},
		},
	}
}

func outerDesc() *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String("Outer"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("inner"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".test.Inner"), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("inner")},
			{Name: proto.String("label"), Number: proto.Int32(2), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("label")},
		},
	}
}

func choiceDesc() *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String("Choice"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("text"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), OneofIndex: proto.Int32(0), JsonName: proto.String("text")},
			{Name: proto.String("number"), Number: proto.Int32(2), Type: descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), OneofIndex: proto.Int32(0), JsonName: proto.String("number")},
			{Name: proto.String("boxed"), Number: proto.Int32(3), Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".test.Inner"), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), OneofIndex: proto.Int32(0), JsonName: proto.String("boxed")},
		},
		OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("kind")}},
	}
}

func listsDesc() *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String("Lists"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("names"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("names")},
			{Name: proto.String("nums"), Number: proto.Int32(2), Type: descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("nums")},
			{Name: proto.String("colors"), Number: proto.Int32(3), Type: descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum(), TypeName: proto.String(".test.Color"), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("colors")},
			{Name: proto.String("inners"), Number: proto.Int32(4), Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".test.Inner"), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("inners")},
		},
	}
}

func mapsDesc() *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String("Maps"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("labels"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".test.Maps.LabelsEntry"), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("labels")},
			{Name: proto.String("counts"), Number: proto.Int32(2), Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".test.Maps.CountsEntry"), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("counts")},
			{Name: proto.String("by_id"), Number: proto.Int32(3), Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".test.Maps.ByIdEntry"), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("byId")},
			{Name: proto.String("flags"), Number: proto.Int32(4), Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".test.Maps.FlagsEntry"), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("flags")},
		},
		NestedType: []*descriptorpb.DescriptorProto{
			mapEntryDesc("LabelsEntry",
				descriptorpb.FieldDescriptorProto_TYPE_STRING, "",
				descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
			mapEntryDesc("CountsEntry",
				descriptorpb.FieldDescriptorProto_TYPE_STRING, "",
				descriptorpb.FieldDescriptorProto_TYPE_INT32, ""),
			mapEntryDesc("ByIdEntry",
				descriptorpb.FieldDescriptorProto_TYPE_INT64, "",
				descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".test.Inner"),
			mapEntryDesc("FlagsEntry",
				descriptorpb.FieldDescriptorProto_TYPE_BOOL, "",
				descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
		},
	}
}

func mapEntryDesc(name string, keyType descriptorpb.FieldDescriptorProto_Type, keyTypeName string, valType descriptorpb.FieldDescriptorProto_Type, valTypeName string) *descriptorpb.DescriptorProto {
	key := &descriptorpb.FieldDescriptorProto{
		Name: proto.String("key"), Number: proto.Int32(1),
		Type:     keyType.Enum(),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		JsonName: proto.String("key"),
	}
	if keyTypeName != "" {
		key.TypeName = proto.String(keyTypeName)
	}
	val := &descriptorpb.FieldDescriptorProto{
		Name: proto.String("value"), Number: proto.Int32(2),
		Type:     valType.Enum(),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		JsonName: proto.String("value"),
	}
	if valTypeName != "" {
		val.TypeName = proto.String(valTypeName)
	}
	return &descriptorpb.DescriptorProto{
		Name:    proto.String(name),
		Field:   []*descriptorpb.FieldDescriptorProto{key, val},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}
}

func personDesc() *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String("Person"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("name"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("name")},
			{Name: proto.String("id"), Number: proto.Int32(2), Type: descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("id")},
			{Name: proto.String("email"), Number: proto.Int32(3), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("email")},
			{Name: proto.String("phones"), Number: proto.Int32(4), Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".test.Person.PhoneNumber"), Label: descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(), JsonName: proto.String("phones")},
		},
		NestedType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("PhoneNumber"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{Name: proto.String("number"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("number")},
				{Name: proto.String("type"), Number: proto.Int32(2), Type: descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum(), TypeName: proto.String(".test.Person.PhoneType"), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(), JsonName: proto.String("type")},
			},
		}},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("PhoneType"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("PHONE_TYPE_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("MOBILE"), Number: proto.Int32(1)},
				{Name: proto.String("HOME"), Number: proto.Int32(2)},
				{Name: proto.String("WORK"), Number: proto.Int32(3)},
			},
		}},
	}
}
