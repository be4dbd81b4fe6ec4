package main

import (
	"os"

	"github.com/flightgate/go-ndc-http-client/internal/cli"
	"github.com/flightgate/go-ndc-http-client/version"
)

func main() {
	if err := cli.Execute(version.GetVersion(), os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
