// Command lakegate is a quality gate for data lake batches.
package main

import (
	"fmt"
	"os"

	"github.com/custodia-labs/lakegate/internal/adapters/driving/cli"
)

func main() {
	cli.SetBootstrap(bootstrap)
	cli.SetConfigStoreOpener(openConfigStore)

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
