package manifest

import (
	"context"
	"fmt"

	"github.com/chazu/gear/compiler"
)

// NewCompiler resolves the project's dependencies and returns a compiler
// holding every source unit of the project, with each dependency imported.
// The dependencies are returned in load order; a runtime must load them
// before the project's own module.
func (m *Manifest) NewCompiler(ctx context.Context) (*compiler.Compiler, []ResolvedDep, error) {
	deps, err := NewResolver(m).Resolve(ctx)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := m.CompilerConfig()
	if err != nil {
		return nil, nil, err
	}
	c := compiler.New(cfg)
	for _, d := range deps {
		im, err := d.Load()
		if err != nil {
			return nil, nil, err
		}
		if err := c.Import(im); err != nil {
			return nil, nil, fmt.Errorf("importing %s: %w", d.Name, err)
		}
	}
	units, err := m.LoadUnits(c)
	if err != nil {
		return nil, nil, err
	}
	log.Debugf("%s: %d units, %d dependencies", m.Project.Name, len(units), len(deps))
	return c, deps, nil
}
