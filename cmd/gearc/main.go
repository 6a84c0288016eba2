// gearc compiles Gear source files or a gear.toml project into a module image.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/chazu/gear/compiler"
	"github.com/chazu/gear/manifest"
	"github.com/chazu/gear/module"
	"github.com/chazu/gear/store"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds the parsed command line.
type options struct {
	target   string
	output   string
	store    string
	main     string
	warnings warningFlags
	verbose  int
	color    bool
	files    []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("gearc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{warnings: warningFlags{}}
	fs.StringVar(&opts.target, "target", "", "Build target: application, library or test (default from gear.toml, else application)")
	fs.StringVar(&opts.output, "o", "", "Output module file (default from gear.toml, else <name>.gmod)")
	fs.StringVar(&opts.store, "store", "", "Also put the module into this module store")
	fs.StringVar(&opts.main, "main", "", "Source file holding the entry point (default: first file for applications)")
	fs.Var(opts.warnings, "W", "Enable a warning, or disable it with a no- prefix (repeatable; \"all\" for every kind)")
	fs.IntVar(&opts.verbose, "v", 0, "Log verbosity (0-2)")
	noColor := fs.Bool("no-color", false, "Never colour diagnostics")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: gearc [options] [files...]\n\n")
		fmt.Fprintf(stderr, "Compiles the given .gear files, or the gear.toml project found from the\n")
		fmt.Fprintf(stderr, "current directory when no files are given.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  gearc                              # build the project in this directory\n")
		fmt.Fprintf(stderr, "  gearc -o app.gmod main.gear util.gear\n")
		fmt.Fprintf(stderr, "  gearc -target library -W all -W no-tabs lib.gear\n")
		fmt.Fprintf(stderr, "  gearc -store modules.db            # build and store the project module\n")
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.files = fs.Args()
	opts.color = !*noColor && isTerminal(stderr)
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	commonlog.Configure(opts.verbose, nil)

	c, name, output, storePath, err := setup(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	err = c.Compile()
	printDiagnostics(stderr, c.Diagnostics(), opts.color)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s failed to compile\n", name)
		return 1
	}

	target := c.Target()
	if err := c.Build(target, output); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "built %s module %s -> %s\n", target, name, output)

	if storePath != "" {
		if err := putInStore(storePath, output); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "stored %s in %s\n", name, storePath)
	}
	return 0
}

// setup creates the compiler for the command line: the given files, or
// the project found from the working directory.
func setup(opts *options) (c *compiler.Compiler, name, output, storePath string, err error) {
	if len(opts.files) > 0 {
		c, name, err = fromFiles(opts)
		if err != nil {
			return nil, "", "", "", err
		}
		output = opts.output
		if output == "" {
			output = name + manifest.ModuleExt
		}
		return c, name, output, opts.store, nil
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, "", "", "", fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		return nil, "", "", "", fmt.Errorf("no source files given and no %s or %s found", manifest.TOMLFile, manifest.YAMLFile)
	}
	if opts.target != "" {
		m.Build.Target = opts.target
	}
	for w, on := range opts.warnings {
		if m.Warnings == nil {
			m.Warnings = make(map[string]bool)
		}
		m.Warnings[w] = on
	}
	c, _, err = m.NewCompiler(context.Background())
	if err != nil {
		return nil, "", "", "", err
	}
	output = m.OutputPath()
	if opts.output != "" {
		output = opts.output
	}
	storePath = m.StorePath()
	if opts.store != "" {
		storePath = opts.store
	}
	return c, m.Project.Name, output, storePath, nil
}

func fromFiles(opts *options) (*compiler.Compiler, string, error) {
	target := module.Application
	if opts.target != "" {
		t, err := module.ParseTarget(opts.target)
		if err != nil {
			return nil, "", err
		}
		target = t
	}
	mainFile := opts.main
	if mainFile == "" && target == module.Application {
		mainFile = opts.files[0]
	}

	name := strings.TrimSuffix(filepath.Base(opts.files[0]), filepath.Ext(opts.files[0]))
	if opts.output != "" {
		name = strings.TrimSuffix(filepath.Base(opts.output), filepath.Ext(opts.output))
	}
	cfg := compiler.Config{Name: name, Target: target}
	if len(opts.warnings) > 0 {
		cfg.Warnings = make(map[compiler.Warning]bool, len(opts.warnings))
		for w, on := range opts.warnings {
			kind, err := compiler.ParseWarning(w)
			if err != nil {
				return nil, "", err
			}
			cfg.Warnings[kind] = on
		}
	}

	c := compiler.New(cfg)
	for _, path := range opts.files {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, "", err
		}
		u := c.NewUnit()
		if err := u.SetProperty(compiler.PropName, manifest.UnitName(path)); err != nil {
			return nil, "", err
		}
		u.SetProperty(compiler.PropDisplayName, filepath.ToSlash(path))
		if filepath.Clean(path) == filepath.Clean(mainFile) {
			u.SetProperty(compiler.PropMain, "true")
		}
		if err := u.SetProperty(compiler.PropSource, string(src)); err != nil {
			return nil, "", err
		}
	}
	return c, name, nil
}

func putInStore(path, image string) error {
	data, err := os.ReadFile(image)
	if err != nil {
		return err
	}
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.Put(data)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
