// gear runs Gear module images, optionally under the debug server, and
// hosts the Gear language server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/gear/manifest"
	"github.com/chazu/gear/module"
	"github.com/chazu/gear/server"
	"github.com/chazu/gear/store"
	"github.com/chazu/gear/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	call      string
	storePath string
	debug     bool
	debugAddr string
	debugPort int
	wait      bool
	lsp       bool
	verbose   int
	modules   []string
	callArgs  []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("gear", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.call, "call", "", "Call this function instead of the entry point; remaining arguments are passed to it")
	fs.StringVar(&opts.storePath, "store", "", "Load modules by name from this module store")
	fs.BoolVar(&opts.debug, "debug", false, "Start the debug server")
	fs.StringVar(&opts.debugAddr, "debug-addr", "", "Debug server address (default "+server.DefaultDebugAddress+")")
	fs.IntVar(&opts.debugPort, "debug-port", 0, "Debug server port (default "+strconv.Itoa(server.DefaultDebugPort)+")")
	fs.BoolVar(&opts.wait, "wait", false, "With -debug, wait for a debugger to attach before running")
	fs.BoolVar(&opts.lsp, "lsp", false, "Run the language server on stdio")
	fs.IntVar(&opts.verbose, "v", 0, "Log verbosity (0-2)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: gear [options] [modules...] [-- args...]\n\n")
		fmt.Fprintf(stderr, "Loads the given module images in order and runs the entry point of the\n")
		fmt.Fprintf(stderr, "last one. Without modules, builds and runs the gear.toml project found\n")
		fmt.Fprintf(stderr, "from the current directory.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  gear app.gmod                       # run the entry point\n")
		fmt.Fprintf(stderr, "  gear -call fact lib.gmod -- 10      # call fact(10), print the result\n")
		fmt.Fprintf(stderr, "  gear -store modules.db shapes app   # load modules by name from a store\n")
		fmt.Fprintf(stderr, "  gear -debug -wait app.gmod          # wait for a debugger on :9229\n")
		fmt.Fprintf(stderr, "  gear -lsp                           # language server on stdio\n")
	}
	// flag consumes "--" itself, so split the call arguments off first.
	var callArgs []string
	dashed := false
	for i, a := range args {
		if a == "--" {
			args, callArgs, dashed = args[:i], args[i+1:], true
			break
		}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.modules = fs.Args()
	switch {
	case dashed && opts.call == "":
		return nil, fmt.Errorf("arguments after -- need -call")
	case dashed:
		opts.callArgs = callArgs
	case opts.call != "" && opts.storePath == "":
		opts.modules, opts.callArgs = splitCallArgs(opts.modules)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	commonlog.Configure(opts.verbose, nil)

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}

	if opts.lsp {
		return runLSP(m, stderr)
	}

	h := newHost(stdout)
	cfg := vm.Config{}
	if m != nil {
		cfg = m.RuntimeConfig()
	}
	rt, err := vm.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	w := server.NewWorker(rt)
	defer func() {
		w.Do(func(rt *vm.Runtime) interface{} { return rt.Close() })
		w.Stop()
	}()

	if _, err := w.Do(func(rt *vm.Runtime) interface{} { return h.install(rt) }); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := loadModules(ctx, w, m, opts.storePath, opts.modules); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if opts.debug {
		dopts := server.DebugOptions{Address: opts.debugAddr, Port: opts.debugPort, Wait: opts.wait}
		if m != nil {
			if dopts.Address == "" {
				dopts.Address = m.Debug.Address
			}
			if dopts.Port == 0 {
				dopts.Port = m.Debug.Port
			}
			dopts.Wait = dopts.Wait || m.Debug.Wait
		}
		s, err := server.StartDebugServer(ctx, w, dopts)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stderr, "debug server listening on %s\n", s.Addr())
		defer server.StopDebugServer(w)
	}

	if opts.call != "" {
		return callFunction(w, opts.call, opts.callArgs, stdout, stderr)
	}
	return runEntry(w, stderr)
}

// splitCallArgs separates leading module files from the arguments of -call.
func splitCallArgs(args []string) (modules, callArgs []string) {
	for i, a := range args {
		if filepath.Ext(a) != manifest.ModuleExt {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

// loadModules loads the named modules in order, from files or from the
// store. With no names it builds and loads the project described by m,
// dependencies first.
func loadModules(ctx context.Context, w *server.Worker[*vm.Runtime], m *manifest.Manifest, storePath string, names []string) error {
	if len(names) == 0 {
		if m == nil {
			return fmt.Errorf("no modules given and no %s or %s found", manifest.TOMLFile, manifest.YAMLFile)
		}
		return loadProject(ctx, w, m)
	}

	var s *store.Store
	if storePath != "" {
		var err error
		if s, err = store.Open(storePath); err != nil {
			return err
		}
		defer s.Close()
	}
	for _, name := range names {
		var mod *module.Module
		var err error
		if s != nil {
			mod, err = s.Module(name)
		} else {
			mod, err = module.ReadFile(name)
		}
		if err != nil {
			return err
		}
		if err := doErr(w, func(rt *vm.Runtime) error { return rt.LoadModule(mod) }); err != nil {
			return err
		}
	}
	return nil
}

func loadProject(ctx context.Context, w *server.Worker[*vm.Runtime], m *manifest.Manifest) error {
	c, deps, err := m.NewCompiler(ctx)
	if err != nil {
		return err
	}
	for _, d := range deps {
		path := d.Module
		if err := doErr(w, func(rt *vm.Runtime) error { return rt.LoadFile(path) }); err != nil {
			return fmt.Errorf("loading %s: %w", d.Name, err)
		}
	}
	if err := c.Compile(); err != nil {
		var b strings.Builder
		for _, d := range c.Diagnostics() {
			b.WriteString("\n  ")
			b.WriteString(d.String())
		}
		return fmt.Errorf("%s failed to compile:%s", m.Project.Name, b.String())
	}
	return doErr(w, func(rt *vm.Runtime) error { return c.BuildToRuntime(c.Target(), rt) })
}

// runEntry runs the entry point. An integer result becomes the exit code.
func runEntry(w *server.Worker[*vm.Runtime], stderr io.Writer) int {
	v, err := w.Do(func(rt *vm.Runtime) interface{} {
		if err := rt.Run(); err != nil {
			return err
		}
		if v, _ := rt.Value(vm.Return); v.Kind() == vm.KindInt {
			return int(rt.GetInt(vm.Return))
		}
		return 0
	})
	if err == nil {
		err, _ = v.(error)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return v.(int)
}

// callFunction calls name with args and prints the result.
func callFunction(w *server.Worker[*vm.Runtime], name string, args []string, stdout, stderr io.Writer) int {
	v, err := w.Do(func(rt *vm.Runtime) interface{} {
		for i, a := range args {
			if err := setArg(rt, vm.Param(i), a); err != nil {
				return err
			}
		}
		if err := rt.CallByName(name, len(args)); err != nil {
			return err
		}
		return rt.GetString(vm.Return)
	})
	if err == nil {
		err, _ = v.(error)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, v)
	return 0
}

// setArg stores a command-line argument: integers and floats as numbers,
// true/false/null as themselves, anything else as a string.
func setArg(rt *vm.Runtime, reg vm.Register, a string) error {
	if i, err := strconv.ParseInt(a, 10, 64); err == nil {
		return rt.SetInt(reg, i)
	}
	if f, err := strconv.ParseFloat(a, 64); err == nil {
		return rt.SetFloat(reg, f)
	}
	switch a {
	case "true", "false":
		return rt.SetBool(reg, a == "true")
	case "null":
		return rt.SetNull(reg)
	}
	return rt.SetString(reg, a)
}

func runLSP(m *manifest.Manifest, stderr io.Writer) int {
	opts := server.LspOptions{}
	if m != nil {
		cfg, err := m.CompilerConfig()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		opts.Config = cfg
		opts.Entry = m.EntryPath()
	}
	if err := server.NewLSP(opts).Run(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func doErr(w *server.Worker[*vm.Runtime], fn func(*vm.Runtime) error) error {
	v, err := w.Do(func(rt *vm.Runtime) interface{} { return fn(rt) })
	if err != nil {
		return err
	}
	if e, ok := v.(error); ok && e != nil {
		return e
	}
	return nil
}
