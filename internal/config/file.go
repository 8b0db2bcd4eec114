package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

const (
	// SupportedVersions is the constraint every file version must satisfy.
	SupportedVersions = "^1.0"

	DefaultStart = 0.0
	DefaultStop  = 10.0
	DefaultDt    = 0.01
)

var (
	ErrVersion   = errors.New("config: unsupported version")
	ErrInvalid   = errors.New("config: invalid file")
	ErrReference = errors.New("config: unresolved reference")
)

// File is a diagram description. YAML and HCL files decode into the same
// structure.
type File struct {
	Version  string        `yaml:"version" hcl:"version"`
	Root     string        `yaml:"root,omitempty" hcl:"root,optional"`
	Diagrams []DiagramSpec `yaml:"diagrams" hcl:"diagram,block"`
	Inputs   []InputValue  `yaml:"inputs,omitempty" hcl:"input,block"`
	Time     float64       `yaml:"time,omitempty" hcl:"time,optional"`
	Sweep    *SweepSpec    `yaml:"sweep,omitempty" hcl:"sweep,block"`
}

type DiagramSpec struct {
	Name          string           `yaml:"name" hcl:"name,label"`
	Blocks        []BlockSpec      `yaml:"blocks" hcl:"block,block"`
	Connections   []ConnectionSpec `yaml:"connections,omitempty" hcl:"connect,block"`
	ExportInputs  []ExportSpec     `yaml:"export_inputs,omitempty" hcl:"export_input,block"`
	ExportOutputs []ExportSpec     `yaml:"export_outputs,omitempty" hcl:"export_output,block"`
}

// BlockSpec is one subsystem. Kind "diagram" instantiates the diagram named
// by Ref; any other kind is looked up in the block registry.
type BlockSpec struct {
	Kind   string             `yaml:"kind" hcl:"kind,label"`
	Name   string             `yaml:"name" hcl:"name,label"`
	Params map[string]float64 `yaml:"params,omitempty" hcl:"params,optional"`
	Value  []float64          `yaml:"value,omitempty" hcl:"value,optional"`
	Expr   string             `yaml:"expr,omitempty" hcl:"expr,optional"`
	Ref    string             `yaml:"ref,omitempty" hcl:"ref,optional"`
}

// ConnectionSpec wires "block.port" to "block.port".
type ConnectionSpec struct {
	From string `yaml:"from" hcl:"from"`
	To   string `yaml:"to" hcl:"to"`
}

// ExportSpec exposes "block.port" under Name, or <block>_<port> if empty.
type ExportSpec struct {
	Port string `yaml:"port" hcl:"port"`
	Name string `yaml:"name,omitempty" hcl:"name,optional"`
}

// InputValue fixes a root diagram input by name.
type InputValue struct {
	Name  string    `yaml:"name" hcl:"name,label"`
	Value []float64 `yaml:"value" hcl:"value"`
}

type SweepSpec struct {
	Start  float64 `yaml:"start" hcl:"start,optional"`
	Stop   float64 `yaml:"stop" hcl:"stop,optional"`
	Dt     float64 `yaml:"dt" hcl:"dt,optional"`
	Output string  `yaml:"output,omitempty" hcl:"output,optional"`
}

// DefaultSweep is used when a file has no sweep block.
func DefaultSweep() SweepSpec {
	return SweepSpec{Start: DefaultStart, Stop: DefaultStop, Dt: DefaultDt}
}

// Load reads a YAML or HCL file, chosen by extension, and validates it.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f *File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		f, err = ParseHCL(data, path)
	default:
		f, err = ParseYAML(data)
	}
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func ParseYAML(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &f, nil
}

// ParseHCL decodes an HCL file. Expressions may use the constants pi and e.
func ParseHCL(data []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	hf, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, diags)
	}
	var f File
	diags = gohcl.DecodeBody(hf.Body, evalContext(), &f)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, diags)
	}
	return &f, nil
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"pi": cty.NumberFloatVal(math.Pi),
			"e":  cty.NumberFloatVal(math.E),
		},
	}
}

// Save writes f as YAML.
func Save(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Encode writes f to w as YAML.
func Encode(w io.Writer, f *File) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

// Validate checks the version and the structure that does not depend on
// the block registry.
func (f *File) Validate() error {
	if err := checkVersion(f.Version); err != nil {
		return err
	}
	if len(f.Diagrams) == 0 {
		return fmt.Errorf("%w: no diagrams", ErrInvalid)
	}
	seen := make(map[string]bool)
	for _, d := range f.Diagrams {
		if d.Name == "" {
			return fmt.Errorf("%w: diagram without a name", ErrInvalid)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate diagram %q", ErrInvalid, d.Name)
		}
		seen[d.Name] = true
		if err := d.validate(); err != nil {
			return err
		}
	}
	if _, err := f.RootDiagram(); err != nil {
		return err
	}
	if f.Sweep != nil {
		if err := f.Sweep.validate(); err != nil {
			return err
		}
	}
	return nil
}

func checkVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: missing version", ErrVersion)
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrVersion, v, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrVersion, v, SupportedVersions)
	}
	return nil
}

func (d *DiagramSpec) validate() error {
	if len(d.Blocks) == 0 {
		return fmt.Errorf("%w: diagram %q has no blocks", ErrInvalid, d.Name)
	}
	names := make(map[string]bool)
	for _, b := range d.Blocks {
		if b.Kind == "" || b.Name == "" {
			return fmt.Errorf("%w: diagram %q: block needs a kind and a name", ErrInvalid, d.Name)
		}
		if strings.Contains(b.Name, ".") {
			return fmt.Errorf("%w: diagram %q: block name %q contains '.'", ErrInvalid, d.Name, b.Name)
		}
		if names[b.Name] {
			return fmt.Errorf("%w: diagram %q: duplicate block %q", ErrInvalid, d.Name, b.Name)
		}
		if b.Kind == "diagram" && b.Ref == "" {
			return fmt.Errorf("%w: diagram %q: block %q needs a ref", ErrInvalid, d.Name, b.Name)
		}
		names[b.Name] = true
	}
	return nil
}

func (s *SweepSpec) validate() error {
	if s.Dt <= 0 || s.Stop < s.Start {
		return fmt.Errorf("%w: sweep needs dt > 0 and stop >= start", ErrInvalid)
	}
	return nil
}

// RootDiagram returns the diagram named by Root, or the only diagram.
func (f *File) RootDiagram() (*DiagramSpec, error) {
	if f.Root == "" {
		if len(f.Diagrams) == 1 {
			return &f.Diagrams[0], nil
		}
		return nil, fmt.Errorf("%w: %d diagrams and no root", ErrInvalid, len(f.Diagrams))
	}
	d := f.Diagram(f.Root)
	if d == nil {
		return nil, fmt.Errorf("%w: root diagram %q", ErrReference, f.Root)
	}
	return d, nil
}

func (f *File) Diagram(name string) *DiagramSpec {
	for i := range f.Diagrams {
		if f.Diagrams[i].Name == name {
			return &f.Diagrams[i]
		}
	}
	return nil
}

// SweepOrDefault returns the file's sweep settings or the defaults.
func (f *File) SweepOrDefault() SweepSpec {
	if f.Sweep == nil {
		return DefaultSweep()
	}
	return *f.Sweep
}

// splitPort splits "block.port".
func splitPort(ref string) (block, port string, err error) {
	block, port, ok := strings.Cut(ref, ".")
	if !ok || block == "" || port == "" {
		return "", "", fmt.Errorf("%w: %q is not block.port", ErrInvalid, ref)
	}
	return block, port, nil
}
