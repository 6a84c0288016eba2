package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/chazu/gear/compiler"
)

// SourceExt is the extension of Gear source files.
const SourceExt = ".gear"

// SourceFile is one source file of a project.
type SourceFile struct {
	Path string // absolute path
	Unit string // unit name derived from the path within its source directory
	Main bool   // the file named by [source] entry
}

// SourceFiles lists the .gear files under every source directory, sorted by
// unit name. A missing source directory is skipped. The entry file is
// included even when it lies outside the source directories.
func (m *Manifest) SourceFiles() ([]SourceFile, error) {
	entry := m.EntryPath()
	seen := make(map[string]bool)
	var files []SourceFile

	for _, dir := range m.SourceDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir && os.IsNotExist(err) {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() || filepath.Ext(path) != SourceExt || seen[path] {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			seen[path] = true
			files = append(files, SourceFile{Path: path, Unit: UnitName(rel), Main: path == entry})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}

	if entry != "" && !seen[entry] {
		if _, err := os.Stat(entry); err != nil {
			return nil, fmt.Errorf("entry file: %w", err)
		}
		files = append(files, SourceFile{Path: entry, Unit: UnitName(filepath.Base(entry)), Main: true})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Unit < files[j].Unit })
	return files, nil
}

// LoadUnits creates one unit in c per source file. Display names are paths
// relative to the project directory.
func (m *Manifest) LoadUnits(c *compiler.Compiler) ([]*compiler.Unit, error) {
	files, err := m.SourceFiles()
	if err != nil {
		return nil, err
	}
	units := make([]*compiler.Unit, 0, len(files))
	for _, f := range files {
		src, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, err
		}
		display, err := filepath.Rel(m.Dir, f.Path)
		if err != nil {
			display = f.Path
		}
		u := c.NewUnit()
		if err := u.SetProperty(compiler.PropName, f.Unit); err != nil {
			return nil, err
		}
		u.SetProperty(compiler.PropDisplayName, filepath.ToSlash(display))
		if f.Main {
			u.SetProperty(compiler.PropMain, "true")
		}
		u.SetProperty(compiler.PropSource, string(src))
		units = append(units, u)
	}
	return units, nil
}
