package main

import (
	"os"

	"github.com/lawrencejones/sinkrouter/cmd/sinkrouter/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		os.Exit(1)
	}
}
