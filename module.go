package gluaprotobuf

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Module provides Protocol Buffers support for a [lua.LState]. Each
// Module instance is bound to a single state and maintains its own
// local type and file registries for descriptors loaded via
// [Module.LoadDescriptorSetBytes] and friends.
//
// Type resolution checks the local registries first, then falls back
// to the configured resolver (default: [protoregistry.GlobalTypes]).
//
// A Module is not safe for concurrent use: it inherits the owning
// LState's single-goroutine discipline. Descriptor loading and guest
// calls from different goroutines require external synchronization.
type Module struct {
	state      *lua.LState
	resolver   *protoregistry.Types
	files      *protoregistry.Files
	localTypes *protoregistry.Types
	localFiles *protoregistry.Files
	log        *zap.Logger
}

// New creates a new [Module] bound to the given [lua.LState].
//
// New panics if state is nil, as this is a programming error
// (invariant violation). It returns an error if option validation
// fails.
func New(state *lua.LState, opts ...Option) (*Module, error) {
	if state == nil {
		panic("gluaprotobuf: state must not be nil")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("gluaprotobuf: %w", err)
	}

	resolver := cfg.resolver
	if resolver == nil {
		resolver = protoregistry.GlobalTypes
	}

	files := cfg.files
	if files == nil {
		files = protoregistry.GlobalFiles
	}

	log := cfg.logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Module{
		state:      state,
		resolver:   resolver,
		files:      files,
		localTypes: new(protoregistry.Types),
		localFiles: new(protoregistry.Files),
		log:        log,
	}, nil
}

// State returns the [lua.LState] this module is bound to.
func (m *Module) State() *lua.LState {
	return m.state
}

// FindDescriptor looks up a descriptor by its fully-qualified name,
// searching the module's local registries first then the configured
// global registry. This is useful for resolving message or enum
// descriptors by name from Go code that works alongside the Lua
// module.
func (m *Module) FindDescriptor(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	return m.fileResolver().FindDescriptorByName(name)
}

// FindMessageDescriptor looks up a message descriptor by its
// fully-qualified name, searching the module's local registries first
// then the configured resolver.
func (m *Module) FindMessageDescriptor(name protoreflect.FullName) (protoreflect.MessageDescriptor, error) {
	return m.findMessageDescriptor(name)
}

// FindEnumDescriptor looks up an enum descriptor by its fully-qualified
// name, searching the module's local registries first then the
// configured resolver.
func (m *Module) FindEnumDescriptor(name protoreflect.FullName) (protoreflect.EnumDescriptor, error) {
	return m.findEnumDescriptor(name)
}

// UnwrapMessage extracts the [proto.Message] from a Lua value handed to
// a serialize callback. It returns false if the value is not a live
// message handle; handles are invalidated when the serialize call that
// created them returns.
func (m *Module) UnwrapMessage(lv lua.LValue) (proto.Message, bool) {
	return unwrapMessageHandle(lv)
}

// LoadDescriptorSetBytes parses a serialized
// [google.golang.org/protobuf/types/descriptorpb.FileDescriptorSet]
// and registers all contained types into the module's local registries.
// Returns the list of registered fully-qualified type names.
func (m *Module) LoadDescriptorSetBytes(data []byte) ([]string, error) {
	return m.loadDescriptorSetBytes(data)
}

// FileResolver returns a resolver that checks the module's local file
// registries first, then falls back to the configured global
// registries. The returned value satisfies [protodesc.Resolver].
func (m *Module) FileResolver() interface {
	FindFileByPath(string) (protoreflect.FileDescriptor, error)
	FindDescriptorByName(protoreflect.FullName) (protoreflect.Descriptor, error)
} {
	return m.fileResolver()
}

// TypeResolver returns a resolver that checks the module's local type
// registries first, then falls back to the configured global
// registries.
func (m *Module) TypeResolver() interface {
	FindMessageByName(protoreflect.FullName) (protoreflect.MessageType, error)
	FindMessageByURL(string) (protoreflect.MessageType, error)
	FindExtensionByName(protoreflect.FullName) (protoreflect.ExtensionType, error)
	FindExtensionByNumber(protoreflect.FullName, protoreflect.FieldNumber) (protoreflect.ExtensionType, error)
} {
	return m.typeResolver()
}

// findMessageDescriptor looks up a message descriptor first in
// localTypes, then in the configured resolver.
func (m *Module) findMessageDescriptor(fullName protoreflect.FullName) (protoreflect.MessageDescriptor, error) {
	mt, err := m.localTypes.FindMessageByName(fullName)
	if err == nil {
		return mt.Descriptor(), nil
	}
	mt, err = m.resolver.FindMessageByName(fullName)
	if err == nil {
		return mt.Descriptor(), nil
	}
	return nil, err
}

// findEnumDescriptor looks up an enum descriptor first in localTypes,
// then in the configured resolver.
func (m *Module) findEnumDescriptor(fullName protoreflect.FullName) (protoreflect.EnumDescriptor, error) {
	et, err := m.localTypes.FindEnumByName(fullName)
	if err == nil {
		return et.Descriptor(), nil
	}
	et, err = m.resolver.FindEnumByName(fullName)
	if err == nil {
		return et.Descriptor(), nil
	}
	return nil, err
}
