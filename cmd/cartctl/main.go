// cartctl is a command-line client for the cart session service.
//
// Examples:
//
//	cartctl add 60 --qty 2
//	cartctl show
//	cartctl dec <line-id>
//	cartctl availability 60 --variant 61 --format json
package main

import (
	"fmt"
	"os"

	"storefront-cart/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
