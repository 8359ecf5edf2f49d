package gluaprotobuf

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes the hard errors raised while marshaling between Lua
// tables and protobuf messages. Unknown type names are deliberately not
// represented here: type-resolution misses are soft failures that the
// entry operations report by returning no values.
type Kind string

const (
	KindUnknownField  Kind = "unknown_field"
	KindTypeMismatch  Kind = "type_mismatch"
	KindUnknownEnum   Kind = "unknown_enum"
	KindBadMapEntry   Kind = "bad_map_entry"
	KindOverflow      Kind = "overflow"
	KindBadArgument   Kind = "bad_argument"
	KindBadDescriptor Kind = "bad_descriptor"
)

// Error is the structured error type used throughout the marshaling
// engine. Path names the field(s) the walk was visiting when it failed,
// outermost first.
type Error struct {
	Kind   Kind
	Path   []string
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the [Kind] from err, or returns the empty Kind when
// err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// withPath prepends a path segment to err when err is an [*Error],
// otherwise wraps it as a new classified error. Used while unwinding the
// recursive marshaling walk so the rendered message names the full
// field path.
func withPath(err error, segment string, fallback Kind) error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Kind:   e.Kind,
			Path:   append([]string{segment}, e.Path...),
			Detail: e.Detail,
			Cause:  e.Cause,
		}
	}
	return &Error{Kind: fallback, Path: []string{segment}, Cause: err}
}

// Convenience constructors for the error taxonomy.

// errUnknownField reports a table key that names no field of the
// destination schema. The detail text is the module's historical
// diagnostic for this case.
func errUnknownField(name string) *Error {
	return &Error{
		Kind:   KindUnknownField,
		Path:   []string{name},
		Detail: fmt.Sprintf("invalid field %s!", name),
	}
}

// errMapValueKind reports a map field whose value slot is not modeled as
// a message entry. The detail text is the module's historical diagnostic
// for this case.
func errMapValueKind(field string) *Error {
	return &Error{
		Kind:   KindBadMapEntry,
		Path:   []string{field},
		Detail: "map cpptype must be message!",
	}
}

// errMapEntrySchema reports a map-entry message that does not have
// exactly the two fields key and value.
func errMapEntrySchema(field string, detail string) *Error {
	return &Error{
		Kind:   KindBadMapEntry,
		Path:   []string{field},
		Detail: detail,
	}
}

// errTypeMismatch reports a Lua value of the wrong dynamic type for a
// field.
func errTypeMismatch(field, want, got string) *Error {
	return &Error{
		Kind:   KindTypeMismatch,
		Path:   []string{field},
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// errUnknownEnum reports an enum symbol the schema does not define.
func errUnknownEnum(field, symbol string, enum string) *Error {
	return &Error{
		Kind:   KindUnknownEnum,
		Path:   []string{field},
		Detail: fmt.Sprintf("unknown enum value name %q for %s", symbol, enum),
	}
}

// errOverflow reports a numeric value outside the range of its field
// kind.
func errOverflow(field string, value any, kind string) *Error {
	return &Error{
		Kind:   KindOverflow,
		Path:   []string{field},
		Detail: fmt.Sprintf("value %v overflows %s", value, kind),
	}
}

// errBadArgument reports a malformed argument at the Lua call boundary.
func errBadArgument(detail string) *Error {
	return &Error{Kind: KindBadArgument, Detail: detail}
}

// errBadDescriptor reports a descriptor that cannot be built or
// registered.
func errBadDescriptor(detail string, cause error) *Error {
	return &Error{Kind: KindBadDescriptor, Detail: detail, Cause: cause}
}
