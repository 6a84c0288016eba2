package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/gear/compiler"
	"github.com/chazu/gear/module"
)

var log = commonlog.GetLogger("gear.manifest")

// ResolvedDep is a dependency resolved to a built library module.
type ResolvedDep struct {
	Name     string      // dependency name, as imported
	Module   string      // path of the library module file
	Source   string      // project directory it was built from, if any
	Hash     module.Hash // content hash of the module image
	Manifest *Manifest   // the dependency's own manifest (nil for module files)
}

// Load reads the dependency's module.
func (d *ResolvedDep) Load() (*module.Module, error) {
	return module.ReadFile(d.Module)
}

// Resolver resolves a project's dependencies into library modules.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
	locked   map[string]*LockedDep
	visiting map[string]bool
}

// NewResolver creates a dependency resolver for m.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (dependencies before dependents). Project dependencies are built as
// libraries under .gear/deps and the lock file is rewritten.
func (r *Resolver) Resolve(ctx context.Context) ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock
	r.locked = make(map[string]*LockedDep)
	r.visiting = map[string]bool{r.manifest.Dir: true}

	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(r.manifest.DepsDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(ctx, r.manifest, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves the dependencies declared by m, recursively.
func (r *Resolver) resolveAll(ctx context.Context, m *Manifest, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	var order []ResolvedDep
	for _, name := range m.DependencyNames() {
		if _, ok := resolved[name]; ok {
			continue
		}
		rd, deps, err := r.resolveOne(ctx, m, name, m.Dependencies[name], resolved)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		resolved[name] = rd
		order = append(order, deps...)
		order = append(order, *rd)
	}
	return order, nil
}

// resolveOne resolves a single dependency declared by m. It returns the
// transitive dependencies the dependency needs ahead of itself.
func (r *Resolver) resolveOne(ctx context.Context, m *Manifest, name string, dep Dependency, resolved map[string]*ResolvedDep) (*ResolvedDep, []ResolvedDep, error) {
	ld := &LockedDep{Name: name}
	r.locked[name] = ld

	var dir string
	switch {
	case dep.Path != "":
		ld.Path = dep.Path
		path := m.resolve(dep.Path)
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("local dependency not found: %w", err)
		}
		if !info.IsDir() {
			return r.moduleFile(name, path, ld)
		}
		dir = path

	case dep.Git != "":
		ld.Git, ld.Tag = dep.Git, dep.Tag
		var err error
		if dir, err = r.checkout(ctx, name, dep); err != nil {
			return nil, nil, err
		}
		if ld.Commit, err = gitCurrentCommit(ctx, dir); err != nil {
			return nil, nil, err
		}

	default:
		return nil, nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	if r.visiting[dir] {
		return nil, nil, fmt.Errorf("dependency cycle through %s", dir)
	}
	r.visiting[dir] = true
	defer delete(r.visiting, dir)

	depManifest, err := Load(dir)
	if err != nil {
		return nil, nil, err
	}
	deps, err := r.resolveAll(ctx, depManifest, resolved)
	if err != nil {
		return nil, nil, err
	}

	var imports []*module.Module
	for _, dn := range depManifest.DependencyNames() {
		im, err := resolved[dn].Load()
		if err != nil {
			return nil, nil, err
		}
		imports = append(imports, im)
	}

	out := filepath.Join(r.manifest.DepsDir(), name+ModuleExt)
	hash, err := BuildLibrary(depManifest, out, imports...)
	if err != nil {
		return nil, nil, err
	}
	ld.Hash = hash.String()
	log.Infof("resolved %s from %s", name, dir)
	return &ResolvedDep{Name: name, Module: out, Source: dir, Hash: hash, Manifest: depManifest}, deps, nil
}

// moduleFile resolves a dependency given as a prebuilt module.
func (r *Resolver) moduleFile(name, path string, ld *LockedDep) (*ResolvedDep, []ResolvedDep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := module.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Target != module.Library {
		return nil, nil, fmt.Errorf("%s is a %s module, not a library", path, m.Target)
	}
	hash := module.HashImage(data)
	if prev := r.lock.FindLockedDep(name); prev != nil && prev.Hash != "" && prev.Hash != hash.String() {
		log.Warningf("%s changed since it was locked", path)
	}
	ld.Hash = hash.String()
	return &ResolvedDep{Name: name, Module: path, Hash: hash}, nil, nil
}

// checkout clones or updates a git dependency and returns its work tree.
func (r *Resolver) checkout(ctx context.Context, name string, dep Dependency) (string, error) {
	dir := filepath.Join(r.manifest.DepsDir(), "src", name)

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
			return "", err
		}
		if err := gitClone(ctx, dep.Git, dir); err != nil {
			return "", err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag || locked.Git != dep.Git {
		log.Infof("fetching %s", name)
		if err := gitFetch(ctx, dir); err != nil {
			return "", err
		}
	}

	if dep.Tag != "" {
		if clean, err := gitIsClean(ctx, dir); err == nil && !clean {
			return "", fmt.Errorf("%s has local changes; not checking out %s", dir, dep.Tag)
		}
		if err := gitCheckout(ctx, dir, dep.Tag); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (r *Resolver) writeLock() error {
	lf := &LockFile{}
	for _, ld := range r.locked {
		lf.Deps = append(lf.Deps, *ld)
	}
	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}

// BuildLibrary compiles the project described by m as a library against
// imports and writes the module to out. Compile errors are returned with
// their diagnostics.
func BuildLibrary(m *Manifest, out string, imports ...*module.Module) (module.Hash, error) {
	cfg, err := m.CompilerConfig()
	if err != nil {
		return module.Hash{}, err
	}
	cfg.Target = module.Library
	c := compiler.New(cfg)
	for _, im := range imports {
		if err := c.Import(im); err != nil {
			return module.Hash{}, err
		}
	}
	if _, err := m.LoadUnits(c); err != nil {
		return module.Hash{}, err
	}
	if err := c.Compile(); err != nil {
		var msgs []string
		for _, d := range c.Diagnostics() {
			if d.Severity == compiler.SeverityError {
				msgs = append(msgs, d.String())
			}
		}
		return module.Hash{}, fmt.Errorf("%s: %w\n%s", m.Project.Name, err, strings.Join(msgs, "\n"))
	}
	data, err := c.Image(module.Library)
	if err != nil {
		return module.Hash{}, err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return module.Hash{}, err
	}
	return module.HashImage(data), nil
}
