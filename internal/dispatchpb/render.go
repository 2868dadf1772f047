package dispatchpb

import (
	"io"
	"os"
	"path"

	"github.com/jhump/protoreflect/v2/protoprint"
)

// Render prints the dispatcher proto definition to w.
func Render(r *Registry, w io.Writer) error {
	pp := protoprint.Printer{}
	return pp.PrintProtoFile(r.File(), w)
}

// RenderDir writes the proto definition below outDir at its file path.
func RenderDir(r *Registry, outDir string) error {
	fp := path.Join(outDir, r.File().Path())
	if err := os.MkdirAll(path.Dir(fp), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := Render(r, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
