package main

import (
	"fmt"
	"io"
	"time"

	"github.com/chazu/gear/vm"
)

// host implements the natives every program run by gear may declare:
//
//	native func print(x);   // writes x and a newline, returns null
//	native func clock();    // milliseconds since the runtime started
type host struct {
	out   io.Writer
	start time.Time
}

func newHost(out io.Writer) *host {
	return &host{out: out, start: time.Now()}
}

func (h *host) install(rt *vm.Runtime) error {
	natives := map[string]vm.NativeFunc{
		"print": h.print,
		"clock": h.clock,
	}
	for name, fn := range natives {
		if err := rt.ImplementFunction(name, fn); err != nil {
			return fmt.Errorf("installing %s: %w", name, err)
		}
	}
	return nil
}

func (h *host) print(rt *vm.Runtime, argc int) int {
	for i := 0; i < argc; i++ {
		if i > 0 {
			fmt.Fprint(h.out, " ")
		}
		fmt.Fprint(h.out, rt.GetString(vm.Param(i)))
	}
	fmt.Fprintln(h.out)
	rt.SetNull(vm.Return)
	return 0
}

func (h *host) clock(rt *vm.Runtime, argc int) int {
	rt.SetInt(vm.Return, time.Since(h.start).Milliseconds())
	return 0
}
