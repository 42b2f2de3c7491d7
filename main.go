package main

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/ardanlabs/mbedtls-bindgen/bindgen"
	"github.com/ardanlabs/mbedtls-bindgen/config"
	"github.com/ardanlabs/mbedtls-bindgen/parser"
)

// backends holds the declaration parsers compiled into the binary.
var backends = map[string]parser.Backend{
	config.BackendRegexp: parser.Regexp,
}

type Flags struct {
	ConfigFile string
	OutDir     string
	MbedTLSSrc string
	ConfigH    string
	Package    string
	Backend    string
	Headers    []string
	Libraries  []string
	Verbose    bool
	DumpDecls  bool
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.StringVarP(&f.ConfigFile, "config", "c", "", "YAML build configuration")
	fs.StringVarP(&f.OutDir, "out-dir", "o", "", "directory receiving the generated files")
	fs.StringVar(&f.MbedTLSSrc, "mbedtls-src", "", "root of the mbed TLS source tree")
	fs.StringVar(&f.ConfigH, "config-h", "", "configuration header (default <mbedtls-src>/include/mbedtls/mbedtls_config.h)")
	fs.StringVarP(&f.Package, "package", "p", "", "package name of the generated files (default mbedtls)")
	fs.StringVar(&f.Backend, "backend", "", "declaration parser: clang or regexp (default clang)")
	fs.StringSliceVar(&f.Headers, "header", nil, "header under include/mbedtls to bind, in order (replaces the configured list)")
	fs.StringSliceVar(&f.Libraries, "library", nil, "shared library opened by Load (replaces the configured list)")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "log at debug level")
	fs.BoolVar(&f.DumpDecls, "dump-decls", false, "print the parsed declarations to stderr")
}

// Load reads the configuration file, if any, and applies the flags that
// were set on fs over it.
func (f *Flags) Load(fs *flag.FlagSet) (*config.Config, error) {
	cfg := &config.Config{}
	if f.ConfigFile != "" {
		var err error
		if cfg, err = config.LoadFile(f.ConfigFile); err != nil {
			return nil, err
		}
	}

	if fs.Changed("mbedtls-src") {
		if !fs.Changed("config-h") && cfg.ConfigH == cfg.DefaultConfigH() {
			cfg.ConfigH = ""
		}
		cfg.MbedTLSSrc = f.MbedTLSSrc
	}
	if fs.Changed("out-dir") {
		cfg.OutDir = f.OutDir
	}
	if fs.Changed("config-h") {
		cfg.ConfigH = f.ConfigH
	}
	if fs.Changed("package") {
		cfg.Package = f.Package
	}
	if fs.Changed("backend") {
		cfg.Backend = f.Backend
	}
	if fs.Changed("header") {
		cfg.Headers = f.Headers
	}
	if fs.Changed("library") {
		cfg.Libraries = f.Libraries
	}

	cfg.ApplyDefaults()

	return cfg, nil
}

// dumpDecls prints every declaration set b returns.
func dumpDecls(b parser.Backend) parser.Backend {
	return parser.BackendFunc(func(header string, args []string) (*parser.Header, error) {
		h, err := b.Parse(header, args)
		if err == nil {
			spew.Fdump(os.Stderr, h)
		}
		return h, err
	})
}

func run(fs *flag.FlagSet, flags *Flags) error {
	cfg, err := flags.Load(fs)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backend, ok := backends[cfg.Backend]
	if !ok {
		return fmt.Errorf("backend %q is not compiled in, rebuild with -tags %s or pass --backend %s", cfg.Backend, cfg.Backend, config.BackendRegexp)
	}
	if flags.DumpDecls {
		backend = dumpDecls(backend)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "run",
		"mbedtls_src": cfg.MbedTLSSrc,
		"config_h":    cfg.ConfigH,
		"backend":     cfg.Backend,
	}).Info("Generating bindings")

	return bindgen.Run(cfg, backend)
}

func main() {
	var flags Flags

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags.SetFlags(fs)
	fs.Parse(os.Args[1:])

	if flags.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := run(fs, &flags); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
