// Command papersearch is the offline CLI: it filters raw dumps, builds and
// inspects snapshots, and runs searches without any of the services.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/cmd/papersearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
