package gluaprotobuf

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// LoadDescriptorSet registers all message and enum types contained in
// the given [descriptorpb.FileDescriptorSet] into the module's local
// registries. Files must appear after their dependencies, as protoc
// emits them. Returns the fully-qualified names that were registered.
func (m *Module) LoadDescriptorSet(fds *descriptorpb.FileDescriptorSet) ([]string, error) {
	var names []string
	for _, fdp := range fds.GetFile() {
		fileNames, err := m.registerFile(fdp)
		if err != nil {
			return names, err
		}
		names = append(names, fileNames...)
	}
	return names, nil
}

// LoadFileDescriptorProto registers the types of a single
// [descriptorpb.FileDescriptorProto]. Its imports must already be
// resolvable. Returns the fully-qualified names that were registered.
func (m *Module) LoadFileDescriptorProto(fdp *descriptorpb.FileDescriptorProto) ([]string, error) {
	return m.registerFile(fdp)
}

// loadDescriptorSetBytes parses a serialized FileDescriptorSet and
// registers all contained types into the module's local registries.
func (m *Module) loadDescriptorSetBytes(data []byte) ([]string, error) {
	fds := new(descriptorpb.FileDescriptorSet)
	if err := proto.Unmarshal(data, fds); err != nil {
		return nil, errBadDescriptor("parsing file descriptor set", err)
	}
	return m.LoadDescriptorSet(fds)
}

// registerFile builds a file descriptor and registers it and all its
// types. A file whose path is already registered is skipped, so the
// same descriptor set can be loaded twice without error.
func (m *Module) registerFile(fdp *descriptorpb.FileDescriptorProto) ([]string, error) {
	if _, err := m.localFiles.FindFileByPath(fdp.GetName()); err == nil {
		return nil, nil
	}

	fd, err := protodesc.NewFile(fdp, m.fileResolver())
	if err != nil {
		return nil, errBadDescriptor(fmt.Sprintf("building file %q", fdp.GetName()), err)
	}
	if regErr := m.localFiles.RegisterFile(fd); regErr != nil {
		// The FindFileByPath check above catches already-registered
		// files; any remaining RegisterFile failure is a duplicate
		// registered between the check and here. Skip it.
		return nil, nil
	}

	names := m.registerFileTypes(fd)
	m.log.Debug("registered descriptor file",
		zap.String("path", fdp.GetName()),
		zap.Int("types", len(names)))
	return names, nil
}

// registerFileTypes registers all message and enum types from a file
// descriptor into the module's localTypes. Returns the list of
// fully-qualified names that were registered.
func (m *Module) registerFileTypes(fd protoreflect.FileDescriptor) []string {
	var names []string
	names = append(names, m.registerMessageTypes(fd.Messages())...)
	names = append(names, m.registerEnumTypes(fd.Enums())...)
	return names
}

// registerMessageTypes recursively registers message types.
func (m *Module) registerMessageTypes(msgs protoreflect.MessageDescriptors) []string {
	var names []string
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		mt := dynamicpb.NewMessageType(md)
		if err := m.localTypes.RegisterMessage(mt); err == nil {
			names = append(names, string(md.FullName()))
		}
		// Recurse into nested messages.
		names = append(names, m.registerMessageTypes(md.Messages())...)
		// Register nested enums.
		names = append(names, m.registerEnumTypes(md.Enums())...)
	}
	return names
}

// registerEnumTypes registers enum types.
func (m *Module) registerEnumTypes(enums protoreflect.EnumDescriptors) []string {
	var names []string
	for i := 0; i < enums.Len(); i++ {
		ed := enums.Get(i)
		et := dynamicpb.NewEnumType(ed)
		if err := m.localTypes.RegisterEnum(et); err == nil {
			names = append(names, string(ed.FullName()))
		}
	}
	return names
}
