package bindgen

import (
	"strings"

	"github.com/ardanlabs/mbedtls-bindgen/generator"
)

// Callbacks are the naming and typing policies consulted during
// generation. Either function may be nil.
type Callbacks struct {
	ItemName func(name string) (string, bool)
	IntMacro func(name string, value int64) (generator.IntKind, bool)
}

// MbedTLS is the mbed TLS policy.
var MbedTLS = Callbacks{
	ItemName: ItemName,
	IntMacro: IntMacro,
}

// ItemName strips the library prefixes from a declaration name. The
// second result is false when the generator should keep its own name.
func ItemName(name string) (string, bool) {
	switch {
	case name == "mbedtls_time_t":
		return name, true
	case strings.HasPrefix(name, "cipher_mode_t_MBEDTLS_"):
		return strings.TrimPrefix(name, "cipher_mode_t_MBEDTLS_"), true
	case strings.HasPrefix(name, "mbedtls_"):
		return strings.TrimPrefix(name, "mbedtls_"), true
	case strings.HasPrefix(name, "MBEDTLS_"):
		return strings.TrimPrefix(name, "MBEDTLS_"), true
	}

	return "", false
}

// IntMacro declares every library macro as a 32-bit signed constant.
func IntMacro(name string, _ int64) (generator.IntKind, bool) {
	if strings.Contains(name, "MBEDTLS_") {
		return generator.I32, true
	}

	return 0, false
}
