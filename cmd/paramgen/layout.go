package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"eeparam-go/nvstore"
)

// layoutFile is the YAML input.
type layoutFile struct {
	Medium struct {
		Size  int `yaml:"size"`
		Start int `yaml:"start"`
	} `yaml:"medium"`
	Params []paramSpec `yaml:"params"`
}

type paramSpec struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Size  int    `yaml:"size"` // bytes only
	Count int    `yaml:"count"`
}

var typeSizes = map[string]int{
	"uint8":   1,
	"int8":    1,
	"uint16":  2,
	"int16":   2,
	"uint32":  4,
	"int32":   4,
	"float32": 4,
}

// layout is a resolved layout ready for rendering.
type layout struct {
	MediumSize int
	Params     []genParam
	Table      nvstore.Table
}

type genParam struct {
	Index int
	Name  string
	Ident string
	Type  string
	Size  int
	Count int
	Addr  int
	End   int
}

func (l layout) End() int { return l.Table.End() }

func readLayout(path string) (layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return layout{}, err
	}
	return parseLayout(raw)
}

func parseLayout(raw []byte) (layout, error) {
	var f layoutFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return layout{}, fmt.Errorf("decode layout: %w", err)
	}
	if f.Medium.Size <= 0 || f.Medium.Size > 1<<16 {
		return layout{}, fmt.Errorf("medium.size must be in 1..65536, got %d", f.Medium.Size)
	}

	seen := map[string]bool{}
	defs := make([]nvstore.ParamDef, 0, len(f.Params))
	for _, p := range f.Params {
		if !validName(p.Name) {
			return layout{}, fmt.Errorf("param %q: name must match [a-z][a-z0-9_]*", p.Name)
		}
		if seen[p.Name] {
			return layout{}, fmt.Errorf("param %q: duplicate name", p.Name)
		}
		seen[p.Name] = true

		size, err := elementSize(p)
		if err != nil {
			return layout{}, err
		}
		defs = append(defs, nvstore.ParamDef{Name: p.Name, Size: size, Count: p.Count})
	}

	tbl, err := nvstore.BuildTable(f.Medium.Start, f.Medium.Size, defs)
	if err != nil {
		return layout{}, err
	}

	l := layout{MediumSize: f.Medium.Size, Table: tbl}
	for i, d := range tbl {
		l.Params = append(l.Params, genParam{
			Index: i,
			Name:  d.Name,
			Ident: ident(d.Name),
			Type:  typeName(f.Params[i]),
			Size:  int(d.ElementSize),
			Count: int(d.SlotCount),
			Addr:  int(d.Base),
			End:   d.End(),
		})
	}
	return l, nil
}

func elementSize(p paramSpec) (int, error) {
	if p.Type == "bytes" {
		if p.Size <= 0 {
			return 0, fmt.Errorf("param %q: bytes needs a positive size", p.Name)
		}
		return p.Size, nil
	}
	n, ok := typeSizes[p.Type]
	if !ok {
		return 0, fmt.Errorf("param %q: unknown type %q", p.Name, p.Type)
	}
	if p.Size != 0 && p.Size != n {
		return 0, fmt.Errorf("param %q: size %d contradicts type %s", p.Name, p.Size, p.Type)
	}
	return n, nil
}

func typeName(p paramSpec) string {
	if p.Type == "bytes" {
		return fmt.Sprintf("[%d]byte", p.Size)
	}
	return p.Type
}

func validName(s string) bool {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}

// ident maps lcd_light to LcdLight.
func ident(name string) string {
	var b strings.Builder
	up := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			up = true
			continue
		}
		if up && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		up = false
		b.WriteByte(c)
	}
	return b.String()
}
