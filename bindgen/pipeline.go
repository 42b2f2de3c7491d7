// Package bindgen generates Go bindings for the mbed TLS C library.
//
// Run executes the whole pipeline: it writes an umbrella header including
// every enabled header, parses it, writes bindings.go, shortens the enum
// constant names left in it and finally writes the mod_bindings.go stub.
// Any failure stops the run. Files already written are left in place.
package bindgen

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ardanlabs/mbedtls-bindgen/config"
	"github.com/ardanlabs/mbedtls-bindgen/parser"
)

// blocklist holds libc functions whose signatures cannot be represented
// or that some platforms lack.
var blocklist = []string{"strtold", "qecvt_r", "qecvt", "qfcvt_r", "qgcvt", "qfcvt"}

// ClangArgs returns the compiler arguments for cfg.
func ClangArgs(cfg *config.Config) []string {
	return []string{
		"-Dmbedtls_t_udbl=mbedtls_t_udbl;",
		fmt.Sprintf("-DMBEDTLS_CONFIG_FILE=<%s>", cfg.ConfigH),
		"-I" + cfg.IncludeDir(),
	}
}

// NewMbedTLSBuilder configures a builder the way the mbed TLS bindings
// are generated.
func NewMbedTLSBuilder(cfg *config.Config, backend parser.Backend, header string) *Builder {
	b := NewBuilder(backend).
		Header(header).
		UseCore(true).
		DeriveDebug(false).
		ParseCallbacks(MbedTLS).
		CTypesPrefix("ctypes").
		OpaqueType("std::*").
		GenerateComments(false).
		Libraries(cfg.Libraries...)

	for _, arg := range ClangArgs(cfg) {
		b.ClangArg(arg)
	}
	for _, name := range blocklist {
		b.BlocklistFunction(name)
	}

	return b
}

// Run generates the bindings described by cfg.
func Run(cfg *config.Config, backend parser.Backend) error {
	log := logrus.WithFields(logrus.Fields{
		"function": "Run",
		"out_dir":  cfg.OutDir,
	})

	header := filepath.Join(cfg.OutDir, UmbrellaName)
	if err := WriteUmbrella(header, cfg.Headers); err != nil {
		return fmt.Errorf("%s I/O error: %w", UmbrellaName, err)
	}
	log.WithField("headers", len(cfg.Headers)).Info("Umbrella header written")

	bindings, err := NewMbedTLSBuilder(cfg, backend, header).Generate()
	if err != nil {
		return fmt.Errorf("bindgen error: %w", err)
	}
	log.WithField("skipped", len(bindings.Skipped())).Info("Bindings generated")

	out := filepath.Join(cfg.OutDir, BindingsName)
	if err := bindings.WriteFile(out, cfg.Package); err != nil {
		return fmt.Errorf("%s I/O error: %w", BindingsName, err)
	}

	if err := RewriteFile(out); err != nil {
		return fmt.Errorf("%s rewrite error: %w", BindingsName, err)
	}
	log.WithField("file", out).Info("Bindings written")

	stub := filepath.Join(cfg.OutDir, StubName)
	if err := WriteStub(stub, cfg.Package); err != nil {
		return fmt.Errorf("%s I/O error: %w", StubName, err)
	}
	log.WithField("file", stub).Info("Module stub written")

	return nil
}
