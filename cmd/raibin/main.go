// Command raibin encodes, decodes and inspects RaiBinary containers.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/raibinary/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
