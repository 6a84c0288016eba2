package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/chazu/gear/compiler"
	"github.com/chazu/gear/module"
)

// UnitName derives a unit name from a source path relative to its source
// directory: "util/strings.gear" -> "util.strings".
func UnitName(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	rel = strings.TrimPrefix(rel, "./")
	return strings.ReplaceAll(rel, "/", ".")
}

// ValidateDependencyName reports whether name can appear in an import
// declaration: an identifier that is neither a keyword nor the entry point.
func ValidateDependencyName(name string) error {
	if name == "" {
		return fmt.Errorf("empty dependency name")
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return fmt.Errorf("dependency name %q is not an identifier", name)
	}
	if compiler.LookupIdent(name) != compiler.TokenIdentifier {
		return fmt.Errorf("dependency name %q is a reserved word", name)
	}
	if name == module.EntryName {
		return fmt.Errorf("dependency name %q is reserved for the entry point", name)
	}
	return nil
}
