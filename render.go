package gluaprotobuf

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// renderMode selects one of the three debug text layouts.
type renderMode int

const (
	renderModeDebug renderMode = iota
	renderModeShort
	renderModeUTF8
)

// parseRenderMode maps the guest-facing mode names to a renderMode.
func parseRenderMode(s string) (renderMode, error) {
	switch s {
	case "debug":
		return renderModeDebug, nil
	case "short":
		return renderModeShort, nil
	case "utf8":
		return renderModeUTF8, nil
	default:
		return 0, errBadArgument(fmt.Sprintf("unknown render mode %q (want debug, short, or utf8)", s))
	}
}

// renderMessage renders msg as protobuf debug text. The "debug" mode
// is multi-line with non-ASCII string content escaped, "short" is the
// same content on a single space-separated line, and "utf8" is
// multi-line with valid UTF-8 kept raw. Output is deterministic:
// fields print in declaration order and map entries sort by key.
func renderMessage(msg protoreflect.Message, mode renderMode) string {
	r := &textRenderer{
		multiline: mode != renderModeShort,
		rawUTF8:   mode == renderModeUTF8,
	}
	r.writeMessage(msg)
	return r.buf.String()
}

// textRenderer accumulates debug text. Only populated fields print,
// mirroring the set-field semantics the rest of the module reads with.
type textRenderer struct {
	buf       strings.Builder
	multiline bool
	rawUTF8   bool
	indent    int
}

func (r *textRenderer) writeMessage(msg protoreflect.Message) {
	fields := msg.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if !msg.Has(fd) {
			continue
		}
		r.writeField(fd, msg.Get(fd))
	}
}

func (r *textRenderer) writeField(fd protoreflect.FieldDescriptor, val protoreflect.Value) {
	switch {
	case fd.IsMap():
		r.writeMapEntries(fd, val.Map())
	case fd.IsList():
		list := val.List()
		for i := 0; i < list.Len(); i++ {
			r.writeSingle(fd, list.Get(i))
		}
	default:
		r.writeSingle(fd, val)
	}
}

// writeMapEntries prints a map field as its entry blocks, sorted by
// key so output does not depend on map iteration order.
func (r *textRenderer) writeMapEntries(fd protoreflect.FieldDescriptor, mp protoreflect.Map) {
	keyDesc := fd.MapKey()
	valDesc := fd.MapValue()

	keys := make([]protoreflect.MapKey, 0, mp.Len())
	mp.Range(func(mk protoreflect.MapKey, _ protoreflect.Value) bool {
		keys = append(keys, mk)
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		return mapKeyLess(keyDesc, keys[i], keys[j])
	})

	name := string(fd.Name())
	for _, mk := range keys {
		r.open(name)
		r.writeSingle(keyDesc, mk.Value())
		r.writeSingle(valDesc, mp.Get(mk))
		r.close()
	}
}

func (r *textRenderer) writeSingle(fd protoreflect.FieldDescriptor, val protoreflect.Value) {
	name := string(fd.Name())
	if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
		r.open(name)
		r.writeMessage(val.Message())
		r.close()
		return
	}
	r.emit(name + ": " + r.formatScalar(fd, val))
}

// emit writes one complete field atom, applying the layout's
// separation rules.
func (r *textRenderer) emit(s string) {
	if r.multiline {
		r.buf.WriteString(strings.Repeat("  ", r.indent))
		r.buf.WriteString(s)
		r.buf.WriteByte('\n')
		return
	}
	if r.buf.Len() > 0 {
		r.buf.WriteByte(' ')
	}
	r.buf.WriteString(s)
}

// open starts a nested message block.
func (r *textRenderer) open(name string) {
	if r.multiline {
		r.buf.WriteString(strings.Repeat("  ", r.indent))
		r.buf.WriteString(name)
		r.buf.WriteString(" {\n")
		r.indent++
		return
	}
	if r.buf.Len() > 0 {
		r.buf.WriteByte(' ')
	}
	r.buf.WriteString(name)
	r.buf.WriteString(" {")
}

// close ends a nested message block.
func (r *textRenderer) close() {
	if r.multiline {
		r.indent--
		r.buf.WriteString(strings.Repeat("  ", r.indent))
		r.buf.WriteString("}\n")
		return
	}
	r.buf.WriteString(" }")
}

func (r *textRenderer) formatScalar(fd protoreflect.FieldDescriptor, val protoreflect.Value) string {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return strconv.FormatBool(val.Bool())

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(val.Int(), 10)

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(val.Uint(), 10)

	case protoreflect.FloatKind:
		return formatFloat(val.Float(), 32)

	case protoreflect.DoubleKind:
		return formatFloat(val.Float(), 64)

	case protoreflect.StringKind:
		return r.quote([]byte(val.String()))

	case protoreflect.BytesKind:
		return r.quote(val.Bytes())

	case protoreflect.EnumKind:
		num := val.Enum()
		if evd := fd.Enum().Values().ByNumber(num); evd != nil {
			return string(evd.Name())
		}
		return strconv.FormatInt(int64(num), 10)

	default:
		return val.String()
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
}

// quote renders string or bytes content double-quoted. In the escaped
// layouts every byte outside printable ASCII becomes a C-style escape;
// in raw-UTF-8 layout valid multi-byte sequences pass through and only
// control characters, quotes, backslashes, and invalid bytes escape.
func (r *textRenderer) quote(data []byte) string {
	var b strings.Builder
	b.WriteByte('"')
	if r.rawUTF8 {
		for i := 0; i < len(data); {
			c, size := utf8.DecodeRune(data[i:])
			if c == utf8.RuneError && size == 1 {
				writeEscapedByte(&b, data[i])
				i++
				continue
			}
			if size == 1 {
				writeASCII(&b, data[i])
			} else {
				b.Write(data[i : i+size])
			}
			i += size
		}
	} else {
		for _, c := range data {
			writeASCII(&b, c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// writeASCII writes a single byte, escaping everything outside the
// printable ASCII range.
func writeASCII(b *strings.Builder, c byte) {
	if c >= 0x20 && c < 0x7f && c != '"' && c != '\\' {
		b.WriteByte(c)
		return
	}
	writeEscapedByte(b, c)
}

func writeEscapedByte(b *strings.Builder, c byte) {
	switch c {
	case '\n':
		b.WriteString(`\n`)
	case '\r':
		b.WriteString(`\r`)
	case '\t':
		b.WriteString(`\t`)
	case '"':
		b.WriteString(`\"`)
	case '\\':
		b.WriteString(`\\`)
	default:
		fmt.Fprintf(b, `\%03o`, c)
	}
}

// mapKeyLess orders map keys of one kind for deterministic rendering.
func mapKeyLess(fd protoreflect.FieldDescriptor, a, b protoreflect.MapKey) bool {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return !a.Bool() && b.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return a.Int() < b.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return a.Uint() < b.Uint()
	default:
		return a.String() < b.String()
	}
}
