package main

import (
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardanlabs/mbedtls-bindgen/config"
	"github.com/ardanlabs/mbedtls-bindgen/parser"
)

func parseFlags(t *testing.T, args ...string) (*flag.FlagSet, *Flags) {
	t.Helper()

	var flags Flags
	fs := flag.NewFlagSet("mbedtls-bindgen", flag.ContinueOnError)
	flags.SetFlags(fs)
	require.NoError(t, fs.Parse(args))

	return fs, &flags
}

func TestLoadConfigFile(t *testing.T) {
	fs, flags := parseFlags(t, "--config", "testdata/bindgen.yaml")

	cfg, err := flags.Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.OutDir)
	assert.Equal(t, "testdata/mbedtls", cfg.MbedTLSSrc)
	assert.Equal(t, filepath.Join("testdata", "mbedtls", "include", "mbedtls", "mbedtls_config.h"), cfg.ConfigH)
	assert.Equal(t, []string{"aes.h", "cipher.h", "gcm.h", "md.h", "platform_util.h"}, cfg.Headers)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	fs, flags := parseFlags(t,
		"--config", "testdata/bindgen.yaml",
		"--mbedtls-src", "/src/mbedtls",
		"--out-dir", "/tmp/out",
		"--header", "aes.h",
		"--library", "mbedcrypto",
		"-p", "sys",
	)

	cfg, err := flags.Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out", cfg.OutDir)
	assert.Equal(t, "/src/mbedtls", cfg.MbedTLSSrc)
	assert.Equal(t, filepath.Join("/src/mbedtls", "include", "mbedtls", "mbedtls_config.h"), cfg.ConfigH)
	assert.Equal(t, []string{"aes.h"}, cfg.Headers)
	assert.Equal(t, []string{"mbedcrypto"}, cfg.Libraries)
	assert.Equal(t, "sys", cfg.Package)
	assert.Equal(t, config.BackendRegexp, cfg.Backend)
}

func TestExplicitConfigHeaderSurvivesSourceOverride(t *testing.T) {
	fs, flags := parseFlags(t,
		"--mbedtls-src", "/src/mbedtls",
		"--config-h", "/etc/mbedtls/custom_config.h",
	)

	cfg, err := flags.Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "/etc/mbedtls/custom_config.h", cfg.ConfigH)
}

func TestDefaultBackendIsClang(t *testing.T) {
	fs, flags := parseFlags(t, "--mbedtls-src", "testdata/mbedtls")

	cfg, err := flags.Load(fs)
	require.NoError(t, err)
	assert.Equal(t, config.BackendClang, cfg.Backend)
}

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out")
	fs, flags := parseFlags(t, "--config", "testdata/bindgen.yaml", "--out-dir", out)

	require.NoError(t, run(fs, flags))

	for _, name := range []string{"bindgen-input.h", "bindings.go", "mod_bindings.go"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
}

func TestRunDumpDecls(t *testing.T) {
	var dumped bool
	backend := parser.BackendFunc(func(string, []string) (*parser.Header, error) {
		dumped = true
		return &parser.Header{}, nil
	})

	h, err := dumpDecls(backend).Parse("bindgen-input.h", nil)
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.True(t, dumped)
}

func TestRunInvalidConfig(t *testing.T) {
	fs, flags := parseFlags(t, "--mbedtls-src", "testdata/mbedtls")

	err := run(fs, flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out_dir is required")
	assert.Contains(t, err.Error(), "at least one header is required")
}

func TestRunBackendNotCompiledIn(t *testing.T) {
	if _, ok := backends[config.BackendClang]; ok {
		t.Skip("built with the clang backend")
	}

	fs, flags := parseFlags(t,
		"--mbedtls-src", "testdata/mbedtls",
		"--out-dir", t.TempDir(),
		"--header", "aes.h",
	)

	err := run(fs, flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-tags clang")
	assert.Contains(t, err.Error(), "--backend regexp")
}

func TestRunMissingConfigFile(t *testing.T) {
	fs, flags := parseFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := flags.Load(fs)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
