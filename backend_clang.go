//go:build clang

package main

import (
	"github.com/ardanlabs/mbedtls-bindgen/config"
	"github.com/ardanlabs/mbedtls-bindgen/parser/clangparse"
)

func init() {
	backends[config.BackendClang] = clangparse.Clang
}
