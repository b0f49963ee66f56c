// Command geoquery compiles and runs OData queries against geospatial
// record stores.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/geoquery/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own failures; anything else comes from
		// cobra itself, e.g. an unknown flag.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(exitErr.Code)
	}
}
