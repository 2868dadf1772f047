// Package dispatchpb describes the odatabatch.v1 remote dispatcher service.
// The descriptors are built at runtime with protobuilder so that no generated
// code is needed; messages are handled with dynamicpb.
package dispatchpb

import (
	"strings"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	FilePath    = "odatabatch/v1/dispatch.proto"
	PackageName = "odatabatch.v1"
	ServiceName = "Dispatcher"
	MethodName  = "Dispatch"
)

// Field names of the dispatch messages.
const (
	FieldMethod    protoreflect.Name = "method"
	FieldPath      protoreflect.Name = "path"
	FieldQuery     protoreflect.Name = "query"
	FieldRawURI    protoreflect.Name = "raw_uri"
	FieldHeaders   protoreflect.Name = "headers"
	FieldBody      protoreflect.Name = "body"
	FieldContentID protoreflect.Name = "content_id"
	FieldStatus    protoreflect.Name = "status"
	FieldName      protoreflect.Name = "name"
	FieldValues    protoreflect.Name = "values"
)

type fieldSpec struct {
	name     protoreflect.Name
	number   protoreflect.FieldNumber
	kind     protoreflect.Kind
	message  *protobuilder.MessageBuilder
	repeated bool
	desc     string
}

// comment renders desc as a leading proto comment, one "// " line per input
// line. Blank lines stay bare so protoprint does not emit trailing spaces.
func comment(desc string) protobuilder.Comments {
	if desc == "" {
		return protobuilder.Comments{}
	}
	var b strings.Builder
	for line := range strings.SplitSeq(strings.TrimRight(desc, "\n"), "\n") {
		if line = strings.TrimRight(line, " \t"); line != "" {
			b.WriteByte(' ')
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return protobuilder.Comments{LeadingComment: b.String()}
}

func newMessage(name protoreflect.Name, desc string, fields ...fieldSpec) *protobuilder.MessageBuilder {
	mb := protobuilder.NewMessage(name)
	mb.SetComments(comment(desc))
	for _, f := range fields {
		var ft *protobuilder.FieldType
		if f.message != nil {
			ft = protobuilder.FieldTypeMessage(f.message)
		} else {
			ft = protobuilder.FieldTypeScalar(f.kind)
		}
		fb := protobuilder.NewField(f.name, ft)
		fb.SetNumber(f.number)
		fb.SetComments(comment(f.desc))
		if f.repeated {
			fb.SetRepeated()
		}
		mb.AddField(fb)
	}
	return mb
}

// Build assembles the dispatcher file descriptor.
func Build() (*Registry, error) {
	header := newMessage("Header", "Header is one HTTP header with all its values.",
		fieldSpec{name: FieldName, number: 1, kind: protoreflect.StringKind},
		fieldSpec{name: FieldValues, number: 2, kind: protoreflect.StringKind, repeated: true},
	)
	request := newMessage("DispatchRequest", "DispatchRequest carries one request of a batch.",
		fieldSpec{name: FieldMethod, number: 1, kind: protoreflect.StringKind},
		fieldSpec{name: FieldPath, number: 2, kind: protoreflect.StringKind, desc: "Path relative to the service root, with forward references resolved."},
		fieldSpec{name: FieldQuery, number: 3, kind: protoreflect.StringKind},
		fieldSpec{name: FieldRawURI, number: 4, kind: protoreflect.StringKind},
		fieldSpec{name: FieldHeaders, number: 5, message: header, repeated: true},
		fieldSpec{name: FieldBody, number: 6, kind: protoreflect.BytesKind},
		fieldSpec{name: FieldContentID, number: 7, kind: protoreflect.StringKind, desc: "Correlation token of a change set member."},
	)
	response := newMessage("DispatchResponse", "DispatchResponse is the HTTP-style outcome of a DispatchRequest.",
		fieldSpec{name: FieldStatus, number: 1, kind: protoreflect.Int32Kind},
		fieldSpec{name: FieldHeaders, number: 2, message: header, repeated: true},
		fieldSpec{name: FieldBody, number: 3, kind: protoreflect.BytesKind},
	)

	method := protobuilder.NewMethod(MethodName,
		protobuilder.RpcTypeMessage(request, false),
		protobuilder.RpcTypeMessage(response, false),
	)
	method.SetComments(comment("Dispatch executes a single request and reports its result.\nStatuses of 400 and above abort the enclosing change set."))
	svc := protobuilder.NewService(ServiceName)
	svc.AddMethod(method)

	fb := protobuilder.NewFile(FilePath)
	fb.SetPackageName(PackageName)
	fb.SetSyntax(protoreflect.Proto3)
	fb.AddMessage(header)
	fb.AddMessage(request)
	fb.AddMessage(response)
	fb.AddService(svc)

	fd, err := fb.Build()
	if err != nil {
		return nil, err
	}
	md := fd.Services().ByName(ServiceName).Methods().ByName(MethodName)
	return &Registry{file: fd, dispatch: md}, nil
}
