package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"go/format"
	"text/template"
)

//go:embed layout.tmpl
var layoutTemplate string

var tmpl = template.Must(template.New("layout").Parse(layoutTemplate))

type renderData struct {
	Source     string
	Package    string
	NVStore    string
	Params     []genParam
	LayoutEnd  int
	MediumSize int
}

// render produces gofmt-ed Go source for l.
func render(l layout, source, pkg, nvstorePath string) ([]byte, error) {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, renderData{
		Source:     source,
		Package:    pkg,
		NVStore:    nvstorePath,
		Params:     l.Params,
		LayoutEnd:  l.End(),
		MediumSize: l.MediumSize,
	})
	if err != nil {
		return nil, err
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated code: %w", err)
	}
	return out, nil
}
