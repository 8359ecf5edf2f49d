package gluaprotobuf

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// combinedFileResolver resolves file descriptors by checking the local
// registry first, then falling back to the configured global registry.
// It implements [protodesc.Resolver].
type combinedFileResolver struct {
	local  *protoregistry.Files
	global *protoregistry.Files
}

func (r *combinedFileResolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	fd, err := r.local.FindFileByPath(path)
	if err == nil {
		return fd, nil
	}
	return r.global.FindFileByPath(path)
}

func (r *combinedFileResolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	d, err := r.local.FindDescriptorByName(name)
	if err == nil {
		return d, nil
	}
	return r.global.FindDescriptorByName(name)
}

// combinedTypeResolver resolves message and extension types by checking
// the local registry first, then falling back to the configured global
// registry.
type combinedTypeResolver struct {
	local  *protoregistry.Types
	global *protoregistry.Types
}

func (r *combinedTypeResolver) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageType, error) {
	mt, err := r.local.FindMessageByName(name)
	if err == nil {
		return mt, nil
	}
	return r.global.FindMessageByName(name)
}

func (r *combinedTypeResolver) FindMessageByURL(url string) (protoreflect.MessageType, error) {
	mt, err := r.local.FindMessageByURL(url)
	if err == nil {
		return mt, nil
	}
	return r.global.FindMessageByURL(url)
}

func (r *combinedTypeResolver) FindExtensionByName(field protoreflect.FullName) (protoreflect.ExtensionType, error) {
	xt, err := r.local.FindExtensionByName(field)
	if err == nil {
		return xt, nil
	}
	return r.global.FindExtensionByName(field)
}

func (r *combinedTypeResolver) FindExtensionByNumber(message protoreflect.FullName, field protoreflect.FieldNumber) (protoreflect.ExtensionType, error) {
	xt, err := r.local.FindExtensionByNumber(message, field)
	if err == nil {
		return xt, nil
	}
	return r.global.FindExtensionByNumber(message, field)
}

// extractPayload extracts the binary payload argument at stack index
// idx. Two calling conventions are accepted:
//
//   - a Lua string, which owns its bytes;
//   - a userdata whose Value is a []byte (a host-owned buffer, passed
//     without copying) followed by an explicit length argument.
//
// It returns the payload and the index of the first argument after it,
// so callers can locate trailing optional arguments.
func (m *Module) extractPayload(L *lua.LState, idx int) ([]byte, int, error) {
	switch v := L.Get(idx).(type) {
	case lua.LString:
		return []byte(string(v)), idx + 1, nil

	case *lua.LUserData:
		buf, ok := v.Value.([]byte)
		if !ok {
			return nil, 0, errBadArgument(fmt.Sprintf("argument #%d: buffer userdata must hold []byte, got %T", idx, v.Value))
		}
		lv := L.Get(idx + 1)
		n, ok := lv.(lua.LNumber)
		if !ok {
			return nil, 0, errBadArgument(fmt.Sprintf("argument #%d: buffer length expected, got %s", idx+1, lv.Type()))
		}
		length := int(n)
		if length < 0 || length > len(buf) {
			return nil, 0, errBadArgument(fmt.Sprintf("argument #%d: buffer length %d out of range (buffer holds %d bytes)", idx+1, length, len(buf)))
		}
		return buf[:length], idx + 2, nil

	default:
		return nil, 0, errBadArgument(fmt.Sprintf("argument #%d: expected string or buffer userdata, got %s", idx, L.Get(idx).Type()))
	}
}

// typeResolver returns a combined type resolver that checks local types
// first, then falls back to the module's configured resolver.
func (m *Module) typeResolver() *combinedTypeResolver {
	return &combinedTypeResolver{
		local:  m.localTypes,
		global: m.resolver,
	}
}

// fileResolver returns a combined file resolver that checks local files
// first, then falls back to the module's configured files.
func (m *Module) fileResolver() *combinedFileResolver {
	return &combinedFileResolver{
		local:  m.localFiles,
		global: m.files,
	}
}
