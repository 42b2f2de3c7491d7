package bindgen

import (
	"os"
	"regexp"
)

// mbedtlsFragment matches identifier fragments such as
// " md_type_t_MBEDTLS_" left in front of enum constants that the naming
// policy could not shorten. Anything after a space matches, so an
// unrelated identifier containing _MBEDTLS_ is cut as well.
var mbedtlsFragment = regexp.MustCompile(` [a-zA-Z_]*_MBEDTLS_`)

// Rewrite collapses every match of mbedtlsFragment to a single space.
// Applying it twice gives the same result as applying it once.
func Rewrite(src []byte) []byte {
	return mbedtlsFragment.ReplaceAll(src, []byte(" "))
}

// RewriteFile applies Rewrite to path in place. It must only run once the
// file is complete.
func RewriteFile(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return os.WriteFile(path, Rewrite(src), st.Mode().Perm())
}
