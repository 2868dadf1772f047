package grpcdispatch

import (
	"net/http"
	"sort"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/odatabatch/internal/batch"
	"github.com/hanpama/odatabatch/internal/dispatchpb"
)

func setString(msg protoreflect.Message, name protoreflect.Name, v string) {
	if v != "" {
		msg.Set(msg.Descriptor().Fields().ByName(name), protoreflect.ValueOfString(v))
	}
}

func getString(msg protoreflect.Message, name protoreflect.Name) string {
	return msg.Get(msg.Descriptor().Fields().ByName(name)).String()
}

func setBytes(msg protoreflect.Message, name protoreflect.Name, v []byte) {
	if len(v) > 0 {
		msg.Set(msg.Descriptor().Fields().ByName(name), protoreflect.ValueOfBytes(v))
	}
}

func getBytes(msg protoreflect.Message, name protoreflect.Name) []byte {
	b := msg.Get(msg.Descriptor().Fields().ByName(name)).Bytes()
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// setHeaders appends h as repeated Header messages, sorted by name.
func setHeaders(msg protoreflect.Message, h http.Header) {
	if len(h) == 0 {
		return
	}
	fd := msg.Descriptor().Fields().ByName(dispatchpb.FieldHeaders)
	hd := fd.Message()
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)

	lst := msg.Mutable(fd).List()
	for _, name := range names {
		hm := dynamicpb.NewMessage(hd)
		hm.Set(hd.Fields().ByName(dispatchpb.FieldName), protoreflect.ValueOfString(name))
		values := hm.Mutable(hd.Fields().ByName(dispatchpb.FieldValues)).List()
		for _, v := range h[name] {
			values.Append(protoreflect.ValueOfString(v))
		}
		lst.Append(protoreflect.ValueOfMessage(hm))
	}
}

func getHeaders(msg protoreflect.Message) http.Header {
	fd := msg.Descriptor().Fields().ByName(dispatchpb.FieldHeaders)
	lst := msg.Get(fd).List()
	h := make(http.Header, lst.Len())
	for i := 0; i < lst.Len(); i++ {
		hm := lst.Get(i).Message()
		name := hm.Get(hm.Descriptor().Fields().ByName(dispatchpb.FieldName)).String()
		values := hm.Get(hm.Descriptor().Fields().ByName(dispatchpb.FieldValues)).List()
		for j := 0; j < values.Len(); j++ {
			h.Add(name, values.Get(j).String())
		}
	}
	return h
}

// EncodeRequest builds a DispatchRequest message for req.
func EncodeRequest(reg *dispatchpb.Registry, req batch.Request) protoreflect.Message {
	msg := dynamicpb.NewMessage(reg.DispatchMethod().Input())
	setString(msg, dispatchpb.FieldMethod, req.Method)
	setString(msg, dispatchpb.FieldPath, req.Path)
	setString(msg, dispatchpb.FieldQuery, req.Query)
	setString(msg, dispatchpb.FieldRawURI, req.RawURI)
	setHeaders(msg, req.Header)
	setBytes(msg, dispatchpb.FieldBody, req.Body)
	setString(msg, dispatchpb.FieldContentID, req.ContentID)
	return msg
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(msg protoreflect.Message) batch.Request {
	return batch.Request{
		Method:    getString(msg, dispatchpb.FieldMethod),
		Path:      getString(msg, dispatchpb.FieldPath),
		Query:     getString(msg, dispatchpb.FieldQuery),
		RawURI:    getString(msg, dispatchpb.FieldRawURI),
		Header:    getHeaders(msg),
		ContentID: getString(msg, dispatchpb.FieldContentID),
		Body:      getBytes(msg, dispatchpb.FieldBody),
	}
}

// EncodeResult builds a DispatchResponse message for res.
func EncodeResult(reg *dispatchpb.Registry, res batch.Result) protoreflect.Message {
	msg := dynamicpb.NewMessage(reg.DispatchMethod().Output())
	msg.Set(msg.Descriptor().Fields().ByName(dispatchpb.FieldStatus), protoreflect.ValueOfInt32(int32(res.StatusCode)))
	setHeaders(msg, res.Header)
	setBytes(msg, dispatchpb.FieldBody, res.Body)
	return msg
}

// DecodeResult is the inverse of EncodeResult.
func DecodeResult(msg protoreflect.Message) batch.Result {
	return batch.Result{
		StatusCode: int(msg.Get(msg.Descriptor().Fields().ByName(dispatchpb.FieldStatus)).Int()),
		Header:     getHeaders(msg),
		Body:       getBytes(msg, dispatchpb.FieldBody),
	}
}
