package gluaprotobuf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	protoparser "github.com/yoheimuta/go-protoparser/v4"
	"github.com/yoheimuta/go-protoparser/v4/parser"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// CompileProto parses .proto source text and builds the corresponding
// [descriptorpb.FileDescriptorProto]. filename becomes the descriptor's
// path, which is how imports of this file resolve. Type references to
// other files must already be resolvable through the module's
// registries. Services are skipped; only the marshaling schema is kept.
func (m *Module) CompileProto(filename, source string) (*descriptorpb.FileDescriptorProto, error) {
	parsed, err := m.parseProto(filename, source)
	if err != nil {
		return nil, err
	}
	return m.buildFile(filename, parsed)
}

// CompileAndLoad compiles .proto source text and registers the
// resulting types into the module's local registries. Returns the
// fully-qualified names that were registered.
func (m *Module) CompileAndLoad(filename, source string) ([]string, error) {
	fdp, err := m.CompileProto(filename, source)
	if err != nil {
		return nil, err
	}
	return m.registerFile(fdp)
}

// LoadProtoFiles reads the named .proto files from disk, resolves them
// against importPaths, and compiles and registers each file after its
// imports. File names are the import-path-relative names used in
// import statements. Imports already resolvable through the module's
// registries, such as compiled-in well-known types, are not read from
// disk. Returns the fully-qualified names that were registered.
func (m *Module) LoadProtoFiles(importPaths []string, files ...string) ([]string, error) {
	loader := &protoLoader{
		m:           m,
		importPaths: importPaths,
		visited:     make(map[string]struct{}),
	}
	var names []string
	for _, f := range files {
		ns, err := loader.load(f)
		if err != nil {
			return names, err
		}
		names = append(names, ns...)
	}
	return names, nil
}

func (m *Module) parseProto(filename, source string) (*parser.Proto, error) {
	parsed, err := protoparser.Parse(
		strings.NewReader(source),
		protoparser.WithFilename(filename),
	)
	if err != nil {
		return nil, errBadDescriptor(fmt.Sprintf("parsing %q", filename), err)
	}
	return parsed, nil
}

// buildFile lowers a parsed AST into a FileDescriptorProto. The walk
// is two-pass: names first, so forward and nested references resolve,
// then definitions.
func (m *Module) buildFile(filename string, parsed *parser.Proto) (*descriptorpb.FileDescriptorProto, error) {
	c := &protoCompiler{
		resolver: m.fileResolver(),
		syntax:   "proto2",
		symbols:  make(map[string]symbolKind),
	}
	if parsed.Syntax != nil {
		c.syntax = strings.Trim(parsed.Syntax.ProtobufVersion, `"`)
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name: proto.String(filename),
	}
	if c.syntax == "proto3" {
		fdp.Syntax = proto.String("proto3")
	}

	for _, v := range parsed.ProtoBody {
		switch elem := v.(type) {
		case *parser.Package:
			c.pkg = elem.Name
			fdp.Package = proto.String(elem.Name)
		case *parser.Import:
			dep := strings.Trim(elem.Location, `"`)
			if elem.Modifier == parser.ImportModifierPublic {
				fdp.PublicDependency = append(fdp.PublicDependency, int32(len(fdp.Dependency)))
			}
			fdp.Dependency = append(fdp.Dependency, dep)
		}
	}

	c.collectSymbols(c.pkg, parsed.ProtoBody)

	for _, v := range parsed.ProtoBody {
		switch elem := v.(type) {
		case *parser.Message:
			dp, err := c.buildMessage(c.pkg, elem)
			if err != nil {
				return nil, err
			}
			fdp.MessageType = append(fdp.MessageType, dp)
		case *parser.Enum:
			ep, err := c.buildEnum(elem)
			if err != nil {
				return nil, err
			}
			fdp.EnumType = append(fdp.EnumType, ep)
		case *parser.Package, *parser.Import, *parser.Option, *parser.Service, *parser.EmptyStatement:
			// File options and services carry no marshaling schema.
		default:
			return nil, errBadDescriptor(fmt.Sprintf("%s: unsupported construct %T", filename, v), nil)
		}
	}

	m.log.Debug("compiled proto source",
		zap.String("file", filename),
		zap.Int("messages", len(fdp.MessageType)),
		zap.Int("enums", len(fdp.EnumType)))
	return fdp, nil
}

// protoLoader tracks one LoadProtoFiles run. Each file compiles after
// its imports so type references land on registered descriptors.
type protoLoader struct {
	m           *Module
	importPaths []string
	visited     map[string]struct{}
}

func (l *protoLoader) load(name string) ([]string, error) {
	if _, ok := l.visited[name]; ok {
		return nil, nil
	}
	l.visited[name] = struct{}{}

	// Already registered or compiled into the binary.
	if _, err := l.m.fileResolver().FindFileByPath(name); err == nil {
		return nil, nil
	}

	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errBadDescriptor(fmt.Sprintf("reading %q", name), err)
	}

	parsed, err := l.m.parseProto(name, string(source))
	if err != nil {
		return nil, err
	}

	var names []string
	for _, v := range parsed.ProtoBody {
		imp, ok := v.(*parser.Import)
		if !ok {
			continue
		}
		ns, err := l.load(strings.Trim(imp.Location, `"`))
		if err != nil {
			return nil, err
		}
		names = append(names, ns...)
	}

	fdp, err := l.m.buildFile(name, parsed)
	if err != nil {
		return nil, err
	}
	ns, err := l.m.registerFile(fdp)
	if err != nil {
		return nil, err
	}
	return append(names, ns...), nil
}

func (l *protoLoader) resolve(name string) (string, error) {
	if len(l.importPaths) == 0 {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	for _, dir := range l.importPaths {
		full := filepath.Join(dir, name)
		if _, err := os.Stat(full); err == nil {
			return full, nil
		}
	}
	return "", errBadDescriptor(fmt.Sprintf("cannot find %q in import paths", name), nil)
}

type symbolKind int

const (
	symbolMessage symbolKind = iota
	symbolEnum
)

// protoCompiler lowers one file's AST. symbols holds the
// fully-qualified names declared in the file being compiled; anything
// else resolves through the module's registries.
type protoCompiler struct {
	resolver interface {
		FindDescriptorByName(protoreflect.FullName) (protoreflect.Descriptor, error)
	}
	pkg     string
	syntax  string
	symbols map[string]symbolKind
}

func (c *protoCompiler) collectSymbols(scope string, body []parser.Visitee) {
	for _, v := range body {
		switch elem := v.(type) {
		case *parser.Message:
			fq := joinScope(scope, elem.MessageName)
			c.symbols[fq] = symbolMessage
			c.collectSymbols(fq, elem.MessageBody)
		case *parser.Enum:
			c.symbols[joinScope(scope, elem.EnumName)] = symbolEnum
		}
	}
}

func (c *protoCompiler) buildMessage(scope string, msg *parser.Message) (*descriptorpb.DescriptorProto, error) {
	dp := &descriptorpb.DescriptorProto{Name: proto.String(msg.MessageName)}
	inner := joinScope(scope, msg.MessageName)

	var optionals []*descriptorpb.FieldDescriptorProto
	for _, v := range msg.MessageBody {
		switch elem := v.(type) {
		case *parser.Field:
			fdp, err := c.buildField(inner, elem)
			if err != nil {
				return nil, err
			}
			dp.Field = append(dp.Field, fdp)
			if c.syntax == "proto3" && elem.IsOptional {
				optionals = append(optionals, fdp)
			}
		case *parser.MapField:
			entry, fdp, err := c.buildMapField(inner, elem)
			if err != nil {
				return nil, err
			}
			dp.NestedType = append(dp.NestedType, entry)
			dp.Field = append(dp.Field, fdp)
		case *parser.Oneof:
			idx := int32(len(dp.OneofDecl))
			dp.OneofDecl = append(dp.OneofDecl, &descriptorpb.OneofDescriptorProto{
				Name: proto.String(elem.OneofName),
			})
			for _, of := range elem.OneofFields {
				fdp, err := c.buildOneofField(inner, of, idx)
				if err != nil {
					return nil, err
				}
				dp.Field = append(dp.Field, fdp)
			}
		case *parser.Message:
			nested, err := c.buildMessage(inner, elem)
			if err != nil {
				return nil, err
			}
			dp.NestedType = append(dp.NestedType, nested)
		case *parser.Enum:
			ep, err := c.buildEnum(elem)
			if err != nil {
				return nil, err
			}
			dp.EnumType = append(dp.EnumType, ep)
		case *parser.Option, *parser.Reserved, *parser.EmptyStatement:
			// Message options and reserved ranges don't affect the
			// wire schema.
		default:
			return nil, errBadDescriptor(fmt.Sprintf("message %s: unsupported construct %T", inner, v), nil)
		}
	}

	// Synthetic oneofs for proto3 optionals go after every declared
	// oneof, which is where protodesc expects them.
	for _, fdp := range optionals {
		idx := int32(len(dp.OneofDecl))
		dp.OneofDecl = append(dp.OneofDecl, &descriptorpb.OneofDescriptorProto{
			Name: proto.String("_" + fdp.GetName()),
		})
		fdp.OneofIndex = proto.Int32(idx)
		fdp.Proto3Optional = proto.Bool(true)
	}
	return dp, nil
}

func (c *protoCompiler) buildField(scope string, f *parser.Field) (*descriptorpb.FieldDescriptorProto, error) {
	num, err := parseFieldNumber(f.FieldNumber)
	if err != nil {
		return nil, errBadDescriptor(fmt.Sprintf("field %s.%s", scope, f.FieldName), err)
	}

	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	switch {
	case f.IsRepeated:
		label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	case f.IsRequired:
		label = descriptorpb.FieldDescriptorProto_LABEL_REQUIRED
	}

	fdp := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(f.FieldName),
		Number: proto.Int32(num),
		Label:  label.Enum(),
	}
	if err := c.setFieldType(scope, fdp, f.Type); err != nil {
		return nil, err
	}
	return fdp, nil
}

func (c *protoCompiler) buildOneofField(scope string, f *parser.OneofField, oneofIndex int32) (*descriptorpb.FieldDescriptorProto, error) {
	num, err := parseFieldNumber(f.FieldNumber)
	if err != nil {
		return nil, errBadDescriptor(fmt.Sprintf("field %s.%s", scope, f.FieldName), err)
	}

	fdp := &descriptorpb.FieldDescriptorProto{
		Name:       proto.String(f.FieldName),
		Number:     proto.Int32(num),
		Label:      descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		OneofIndex: proto.Int32(oneofIndex),
	}
	if err := c.setFieldType(scope, fdp, f.Type); err != nil {
		return nil, err
	}
	return fdp, nil
}

// buildMapField synthesizes the nested map entry message and the
// repeated field pointing at it, mirroring what protoc emits for map
// syntax.
func (c *protoCompiler) buildMapField(scope string, mf *parser.MapField) (*descriptorpb.DescriptorProto, *descriptorpb.FieldDescriptorProto, error) {
	keyType, ok := scalarTypes[mf.KeyType]
	if !ok || !validMapKeyType(keyType) {
		return nil, nil, errBadDescriptor(fmt.Sprintf(
			"map field %s.%s: invalid key type %q", scope, mf.MapName, mf.KeyType), nil)
	}

	num, err := parseFieldNumber(mf.FieldNumber)
	if err != nil {
		return nil, nil, errBadDescriptor(fmt.Sprintf("map field %s.%s", scope, mf.MapName), err)
	}

	value := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String("value"),
		Number: proto.Int32(2),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
	if err := c.setFieldType(scope, value, mf.Type); err != nil {
		return nil, nil, err
	}

	entryName := mapEntryName(mf.MapName)
	entry := &descriptorpb.DescriptorProto{
		Name: proto.String(entryName),
		Field: []*descriptorpb.FieldDescriptorProto{
			{
				Name:   proto.String("key"),
				Number: proto.Int32(1),
				Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				Type:   keyType.Enum(),
			},
			value,
		},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}

	fdp := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(mf.MapName),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String("." + joinScope(scope, entryName)),
	}
	return entry, fdp, nil
}

func (c *protoCompiler) buildEnum(e *parser.Enum) (*descriptorpb.EnumDescriptorProto, error) {
	edp := &descriptorpb.EnumDescriptorProto{Name: proto.String(e.EnumName)}
	for _, v := range e.EnumBody {
		switch elem := v.(type) {
		case *parser.EnumField:
			num, err := strconv.ParseInt(elem.Number, 0, 32)
			if err != nil {
				return nil, errBadDescriptor(fmt.Sprintf(
					"enum %s: invalid number %q for %s", e.EnumName, elem.Number, elem.Ident), nil)
			}
			edp.Value = append(edp.Value, &descriptorpb.EnumValueDescriptorProto{
				Name:   proto.String(elem.Ident),
				Number: proto.Int32(int32(num)),
			})
		case *parser.Option:
			if elem.OptionName == "allow_alias" && elem.Constant == "true" {
				edp.Options = &descriptorpb.EnumOptions{AllowAlias: proto.Bool(true)}
			}
		}
	}
	return edp, nil
}

// setFieldType fills in Type and, for named types, TypeName. Named
// references resolve innermost scope outward, then through the
// module's registries, which is how protoc scopes them.
func (c *protoCompiler) setFieldType(scope string, fdp *descriptorpb.FieldDescriptorProto, typeName string) error {
	if t, ok := scalarTypes[typeName]; ok {
		fdp.Type = t.Enum()
		return nil
	}

	fq, kind, err := c.resolveTypeName(scope, typeName)
	if err != nil {
		return err
	}
	switch kind {
	case symbolMessage:
		fdp.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
	case symbolEnum:
		fdp.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
	}
	fdp.TypeName = proto.String("." + fq)
	return nil
}

func (c *protoCompiler) resolveTypeName(scope, name string) (string, symbolKind, error) {
	if strings.HasPrefix(name, ".") {
		fq := strings.TrimPrefix(name, ".")
		if kind, ok := c.lookup(fq); ok {
			return fq, kind, nil
		}
		return "", 0, errBadDescriptor(fmt.Sprintf("unresolvable type name %q", name), nil)
	}
	for s := scope; ; s = parentScope(s) {
		fq := joinScope(s, name)
		if kind, ok := c.lookup(fq); ok {
			return fq, kind, nil
		}
		if s == "" {
			break
		}
	}
	return "", 0, errBadDescriptor(fmt.Sprintf("unresolvable type name %q in %s", name, scope), nil)
}

func (c *protoCompiler) lookup(fq string) (symbolKind, bool) {
	if kind, ok := c.symbols[fq]; ok {
		return kind, true
	}
	desc, err := c.resolver.FindDescriptorByName(protoreflect.FullName(fq))
	if err != nil {
		return 0, false
	}
	switch desc.(type) {
	case protoreflect.MessageDescriptor:
		return symbolMessage, true
	case protoreflect.EnumDescriptor:
		return symbolEnum, true
	}
	return 0, false
}

var scalarTypes = map[string]descriptorpb.FieldDescriptorProto_Type{
	"double":   descriptorpb.FieldDescriptorProto_TYPE_DOUBLE,
	"float":    descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
	"int32":    descriptorpb.FieldDescriptorProto_TYPE_INT32,
	"int64":    descriptorpb.FieldDescriptorProto_TYPE_INT64,
	"uint32":   descriptorpb.FieldDescriptorProto_TYPE_UINT32,
	"uint64":   descriptorpb.FieldDescriptorProto_TYPE_UINT64,
	"sint32":   descriptorpb.FieldDescriptorProto_TYPE_SINT32,
	"sint64":   descriptorpb.FieldDescriptorProto_TYPE_SINT64,
	"fixed32":  descriptorpb.FieldDescriptorProto_TYPE_FIXED32,
	"fixed64":  descriptorpb.FieldDescriptorProto_TYPE_FIXED64,
	"sfixed32": descriptorpb.FieldDescriptorProto_TYPE_SFIXED32,
	"sfixed64": descriptorpb.FieldDescriptorProto_TYPE_SFIXED64,
	"bool":     descriptorpb.FieldDescriptorProto_TYPE_BOOL,
	"string":   descriptorpb.FieldDescriptorProto_TYPE_STRING,
	"bytes":    descriptorpb.FieldDescriptorProto_TYPE_BYTES,
}

// validMapKeyType reports whether a scalar type can key a map field.
func validMapKeyType(t descriptorpb.FieldDescriptorProto_Type) bool {
	switch t {
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE,
		descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
		descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return false
	default:
		return true
	}
}

func parseFieldNumber(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid field number %q", s)
	}
	return int32(n), nil
}

// mapEntryName derives the synthetic entry message name the same way
// protoc does: underscores drop and the following letter capitalizes.
func mapEntryName(field string) string {
	var b strings.Builder
	up := true
	for _, r := range field {
		if r == '_' {
			up = true
			continue
		}
		if up {
			r = unicode.ToUpper(r)
			up = false
		}
		b.WriteRune(r)
	}
	b.WriteString("Entry")
	return b.String()
}

func joinScope(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

func parentScope(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[:i]
	}
	return ""
}
