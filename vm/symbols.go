package vm

import "sort"

// SymbolTable holds the name to value bindings exported by loaded modules
// and by the host through ImplementFunction.
type SymbolTable struct {
	values  map[string]Value
	mutable map[string]bool // module globals only; false for let
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{values: make(map[string]Value), mutable: make(map[string]bool)}
}

// Lookup returns the value bound to name.
func (s *SymbolTable) Lookup(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of bindings.
func (s *SymbolTable) Len() int { return len(s.values) }

// Names returns the bound names in sorted order.
func (s *SymbolTable) Names() []string {
	names := make([]string, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *SymbolTable) bind(name string, v Value) {
	s.values[name] = v
}

func (s *SymbolTable) reset() {
	s.values = make(map[string]Value)
	s.mutable = make(map[string]bool)
}
