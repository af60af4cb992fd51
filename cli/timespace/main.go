package main

import (
	"os"

	timespacecmder "github.com/papercomputeco/timespace/cmd/timespace"
)

func main() {
	cmd := timespacecmder.NewTimespaceCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
