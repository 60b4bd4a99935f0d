package main

import (
	"github.com/eclipse-opendut/opendut-go/cmd/ccpd/app"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
