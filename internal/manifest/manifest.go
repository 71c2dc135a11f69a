// Package manifest loads lanevar.toml, which names the LLVM module to
// analyze and, per kernel, the IR values bound to descriptor fields.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"lanevar/internal/kernel"
)

// FileName is the manifest file name searched for by Find.
const FileName = "lanevar.toml"

// AutoThreadIDUses asks the driver to count thread id dimensions from the IR.
const AutoThreadIDUses = -1

// Manifest is a loaded lanevar.toml.
type Manifest struct {
	Path    string
	Root    string
	Module  string // absolute path of the .ll file
	Kernels []Kernel

	// Variance overrides the default variance map per field.
	Variance map[kernel.Field]bool
}

// Kernel describes one function to classify.
type Kernel struct {
	Name         string
	ThreadIDUses int
	Bind         map[kernel.Field]string
}

type fileConfig struct {
	Module   moduleConfig    `toml:"module"`
	Variance map[string]bool `toml:"variance"`
	Kernels  []kernelConfig  `toml:"kernel"`
}

type moduleConfig struct {
	Path string `toml:"path"`
}

type kernelConfig struct {
	Name         string            `toml:"name"`
	ThreadIDUses *int              `toml:"thread_id_uses"`
	Bind         map[string]string `toml:"bind"`
}

// Find walks up from startDir looking for lanevar.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if !meta.IsDefined("module", "path") || strings.TrimSpace(cfg.Module.Path) == "" {
		return nil, fmt.Errorf("%s: missing [module].path", path)
	}
	if len(cfg.Kernels) == 0 {
		return nil, fmt.Errorf("%s: no [[kernel]] entries", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	root := filepath.Dir(abs)
	m := &Manifest{
		Path:   abs,
		Root:   root,
		Module: resolve(root, cfg.Module.Path),
	}

	if len(cfg.Variance) > 0 {
		m.Variance = make(map[kernel.Field]bool, len(cfg.Variance))
		for name, variant := range cfg.Variance {
			f, err := kernel.ParseField(name)
			if err != nil {
				return nil, fmt.Errorf("%s: [variance]: %w", path, err)
			}
			m.Variance[f] = variant
		}
	}

	seen := make(map[string]bool, len(cfg.Kernels))
	for i, kc := range cfg.Kernels {
		name := strings.TrimSpace(kc.Name)
		if name == "" {
			return nil, fmt.Errorf("%s: kernel #%d: missing name", path, i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("%s: kernel %q listed twice", path, name)
		}
		seen[name] = true
		k, err := NewKernel(name, kc.Bind)
		if err != nil {
			return nil, fmt.Errorf("%s: kernel %q: %w", path, name, err)
		}
		if kc.ThreadIDUses != nil {
			if *kc.ThreadIDUses < 0 {
				return nil, fmt.Errorf("%s: kernel %q: thread_id_uses must not be negative", path, name)
			}
			k.ThreadIDUses = *kc.ThreadIDUses
		}
		m.Kernels = append(m.Kernels, k)
	}
	return m, nil
}

// NewKernel builds a kernel entry from field-name bindings, as read from
// the manifest or from --bind flags.
func NewKernel(name string, bind map[string]string) (Kernel, error) {
	k := Kernel{
		Name:         name,
		ThreadIDUses: AutoThreadIDUses,
		Bind:         make(map[kernel.Field]string, len(bind)),
	}
	for field, value := range bind {
		f, err := kernel.ParseField(field)
		if err != nil {
			return Kernel{}, err
		}
		if f == kernel.FieldDescriptorArray {
			return Kernel{}, fmt.Errorf("field %s cannot be bound", f)
		}
		k.Bind[f] = strings.TrimLeft(strings.TrimSpace(value), "%@")
	}
	return k, nil
}

// VarianceMap applies the manifest overrides to the default map.
func (m *Manifest) VarianceMap() kernel.VarianceMap {
	vm := kernel.DefaultVarianceMap()
	if m == nil {
		return vm
	}
	fields := make([]kernel.Field, 0, len(m.Variance))
	for f := range m.Variance {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	for _, f := range fields {
		vm = vm.With(f, m.Variance[f])
	}
	return vm
}

func resolve(root, p string) string {
	p = filepath.FromSlash(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
