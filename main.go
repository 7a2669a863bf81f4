package main

import (
	"fmt"
	"os"

	"github.com/kilnbuild/kiln/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	repo    = "github.com/kilnbuild/kiln"
)

func main() {
	cmd.SetVersionInfo(version, commit, date, repo)
	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
