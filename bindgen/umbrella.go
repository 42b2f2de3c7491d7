package bindgen

import (
	"bufio"
	"fmt"
	"os"
)

// UmbrellaName is the file the umbrella header is written to.
const UmbrellaName = "bindgen-input.h"

// WriteUmbrella writes one `#include <mbedtls/NAME>` line per header, in
// the given order.
func WriteUmbrella(path string, headers []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, h := range headers {
		fmt.Fprintf(w, "#include <mbedtls/%s>\n", h)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	return f.Close()
}
