// Package manifest handles gear.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/chazu/gear/compiler"
	"github.com/chazu/gear/module"
	"github.com/chazu/gear/vm"
)

// File names recognized as a project manifest, in lookup order.
const (
	TOMLFile = "gear.toml"
	YAMLFile = "gear.yaml"
)

// ModuleExt is the file extension of built module images.
const ModuleExt = ".gmod"

// Manifest represents a gear.toml (or gear.yaml) project configuration.
type Manifest struct {
	Project      Project               `toml:"project" yaml:"project"`
	Source       Source                `toml:"source" yaml:"source"`
	Build        Build                 `toml:"build" yaml:"build"`
	Warnings     map[string]bool       `toml:"warnings" yaml:"warnings"`
	Runtime      Runtime               `toml:"runtime" yaml:"runtime"`
	Debug        Debug                 `toml:"debug" yaml:"debug"`
	Dependencies map[string]Dependency `toml:"dependencies" yaml:"dependencies"`

	// Dir is the directory containing the manifest file (set at load time).
	Dir string `toml:"-" yaml:"-"`
	// Path is the manifest file itself (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
}

// Source configures source file locations. Entry is the file, relative to
// the project directory, whose unit provides the entry point.
type Source struct {
	Dirs  []string `toml:"dirs" yaml:"dirs"`
	Entry string   `toml:"entry" yaml:"entry"`
}

// Build configures module output.
type Build struct {
	Target string `toml:"target" yaml:"target"`
	Output string `toml:"output" yaml:"output"`
	Store  string `toml:"store" yaml:"store"`
}

// Runtime holds vm.Config values. Zero fields keep the runtime defaults.
type Runtime struct {
	GCThreshold    int `toml:"gc-threshold" yaml:"gc-threshold"`
	MaxCallDepth   int `toml:"max-call-depth" yaml:"max-call-depth"`
	ParamRegisters int `toml:"param-registers" yaml:"param-registers"`
	IntBits        int `toml:"int-bits" yaml:"int-bits"`
	FloatBits      int `toml:"float-bits" yaml:"float-bits"`
}

// Debug configures the debug server started by the runtime command.
type Debug struct {
	Address string `toml:"address" yaml:"address"`
	Port    int    `toml:"port" yaml:"port"`
	Wait    bool   `toml:"wait" yaml:"wait"`
}

// Dependency is a library module the project's imports resolve to. Path
// names a built module file or a project directory; Git names a repository
// holding a project, checked out at Tag.
type Dependency struct {
	Git  string `toml:"git" yaml:"git"`
	Tag  string `toml:"tag" yaml:"tag"`
	Path string `toml:"path" yaml:"path"`
}

// Load parses the manifest in dir, preferring gear.toml over gear.yaml.
func Load(dir string) (*Manifest, error) {
	path, err := manifestFile(dir)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile parses the manifest at path. The format follows the extension.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = toml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m.Dir = filepath.Dir(m.Path)

	// Defaults
	if m.Project.Name == "" {
		m.Project.Name = filepath.Base(m.Dir)
	}
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Build.Target == "" {
		m.Build.Target = module.Application.String()
	}
	if m.Build.Output == "" {
		m.Build.Output = m.Project.Name + ModuleExt
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a gear.toml or gear.yaml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path, err := manifestFile(dir)
		if err == nil {
			return LoadFile(path)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func manifestFile(dir string) (string, error) {
	for _, name := range []string{TOMLFile, YAMLFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no %s or %s in %s: %w", TOMLFile, YAMLFile, dir, os.ErrNotExist)
}

func (m *Manifest) validate() error {
	if _, err := module.ParseTarget(m.Build.Target); err != nil {
		return fmt.Errorf("[build] %w", err)
	}
	for name := range m.Warnings {
		if _, err := compiler.ParseWarning(name); err != nil {
			return fmt.Errorf("[warnings] %w", err)
		}
	}
	for name, dep := range m.Dependencies {
		if err := ValidateDependencyName(name); err != nil {
			return fmt.Errorf("[dependencies] %w", err)
		}
		if dep.Git == "" && dep.Path == "" {
			return fmt.Errorf("[dependencies] %s has no git or path specified", name)
		}
	}
	return nil
}

// Target returns the configured build target.
func (m *Manifest) Target() module.Target {
	t, _ := module.ParseTarget(m.Build.Target)
	return t
}

// CompilerConfig maps the manifest onto a compiler configuration.
func (m *Manifest) CompilerConfig() (compiler.Config, error) {
	target, err := module.ParseTarget(m.Build.Target)
	if err != nil {
		return compiler.Config{}, err
	}
	cfg := compiler.Config{
		Name:    m.Project.Name,
		Target:  target,
		IntBits: m.Runtime.IntBits,
	}
	if len(m.Warnings) > 0 {
		cfg.Warnings = make(map[compiler.Warning]bool, len(m.Warnings))
		for name, on := range m.Warnings {
			w, err := compiler.ParseWarning(name)
			if err != nil {
				return compiler.Config{}, err
			}
			cfg.Warnings[w] = on
		}
	}
	return cfg, nil
}

// RuntimeConfig maps the [runtime] section onto a vm configuration.
func (m *Manifest) RuntimeConfig() vm.Config {
	return vm.Config{
		IntBits:        m.Runtime.IntBits,
		FloatBits:      m.Runtime.FloatBits,
		GCThreshold:    m.Runtime.GCThreshold,
		MaxCallDepth:   m.Runtime.MaxCallDepth,
		ParamRegisters: m.Runtime.ParamRegisters,
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// EntryPath returns the absolute path of the entry file, or "" if unset.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	return m.resolve(m.Source.Entry)
}

// OutputPath returns the absolute path of the built module.
func (m *Manifest) OutputPath() string {
	return m.resolve(m.Build.Output)
}

// StorePath returns the absolute path of the module store, or "" if unset.
func (m *Manifest) StorePath() string {
	if m.Build.Store == "" {
		return ""
	}
	return m.resolve(m.Build.Store)
}

// DepsDir returns the path to the .gear/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".gear", "deps")
}

// LockFilePath returns the path to .gear/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".gear", "lock.toml")
}

// DependencyNames returns the dependency names in sorted order.
func (m *Manifest) DependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(m.Dir, p)
}
