// Package manifest declares task graphs in YAML or HCL files and compiles
// them into a core.GraphBuilder with synthetic payloads.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Format is a manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor HCL.
var ErrUnsupportedFormat = errors.New("unsupported manifest format")

// Manifest is a named list of task declarations.
type Manifest struct {
	Name  string `yaml:"name"`
	Tasks []Task `yaml:"tasks"`
}

// Task declares one synthetic task.
type Task struct {
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on"`
	Priority  string   `yaml:"priority"`

	// Duration is how long the payload sleeps, as a Go duration string.
	Duration string `yaml:"duration"`
	// Fail makes the payload return an error with this message.
	Fail string `yaml:"fail"`
	// Panic makes the payload panic.
	Panic bool `yaml:"panic"`
	// Result is the value the payload returns on success.
	Result string `yaml:"result"`
}

// hclFile mirrors Manifest for gohcl decoding:
//
//	name = "demo"
//	task "fetch" {
//	  duration = "10ms"
//	}
//	task "parse" {
//	  depends_on = ["fetch"]
//	  result     = env.USER
//	}
type hclFile struct {
	Name  string    `hcl:"name,optional"`
	Tasks []hclTask `hcl:"task,block"`
}

type hclTask struct {
	Name      string   `hcl:"name,label"`
	DependsOn []string `hcl:"depends_on,optional"`
	Priority  string   `hcl:"priority,optional"`
	Duration  string   `hcl:"duration,optional"`
	Fail      string   `hcl:"fail,optional"`
	Panic     bool     `hcl:"panic,optional"`
	Result    string   `hcl:"result,optional"`
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// Parse decodes data in the given format. filename is only used in
// diagnostics.
func Parse(data []byte, format Format, filename string) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode YAML manifest %s: %w", filename, err)
		}
	case FormatHCL:
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCL(data, filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL manifest %s: %w", filename, diags)
		}
		var parsed hclFile
		if diags := gohcl.DecodeBody(file.Body, evalContext(), &parsed); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL manifest %s: %w", filename, diags)
		}
		m.Name = parsed.Name
		for _, t := range parsed.Tasks {
			m.Tasks = append(m.Tasks, Task(t))
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", filename, err)
	}
	return &m, nil
}

// evalContext exposes the process environment to HCL expressions as env.NAME.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if ok && hclsyntax.ValidIdentifier(name) {
			env[name] = cty.StringVal(value)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
}

// Validate checks names, priorities and durations. Dependency names are
// checked by Compile.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(m.Tasks))
	for i, t := range m.Tasks {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("task #%d has no name", i))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("duplicate task %q", t.Name))
		}
		seen[t.Name] = true
		if _, err := core.ParseTaskPriority(t.Priority); err != nil {
			errs = append(errs, fmt.Errorf("task %q: %w", t.Name, err))
		}
		if t.Duration != "" {
			if d, err := time.ParseDuration(t.Duration); err != nil || d < 0 {
				errs = append(errs, fmt.Errorf("task %q: invalid duration %q", t.Name, t.Duration))
			}
		}
	}
	return errors.Join(errs...)
}
