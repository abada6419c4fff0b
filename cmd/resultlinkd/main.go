// Command resultlinkd serves shareable result links and their supporting API.
package main

import (
	"os"

	"github.com/goliatone/go-resultlink/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
