// woody-init is the first process inside a new container's namespaces.
// It builds the mount jail, enters it, and execs the workload. It is
// launched by woodyd and is not meant to be run by hand.
package main

import (
	"fmt"
	"os"

	"github.com/woody-containers/woody/pkg/container"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "woody-init: no command to exec")
		os.Exit(1)
	}

	if err := container.RunInit(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "woody-init: %v\n", err)
		os.Exit(1)
	}
}
