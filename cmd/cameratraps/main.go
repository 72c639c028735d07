package main

import (
	"os"

	"github.com/TaffyWrinkle/CameraTraps/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
