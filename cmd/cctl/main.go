package main

import (
	"os"

	"github.com/eclipse-opendut/opendut-go/cmd/cctl/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
