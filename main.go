// Command parallelcache runs the capture/replay driver's CLI.
package main

import (
	"fmt"
	"os"

	"github.com/jpequegn/parallelcache/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
