package main

import (
	"os"

	brookcmder "github.com/brookhq/brook/cmd/brook"
)

func main() {
	cmd := brookcmder.NewBrookCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
