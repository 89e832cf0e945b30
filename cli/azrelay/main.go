package main

import (
	"os"

	azrelaycmder "github.com/papercomputeco/azrelay/cmd/azrelay"
)

func main() {
	cmd := azrelaycmder.NewAzrelayCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
