package main

import (
	"fmt"
	"os"
)

const serviceName = "yieldd"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "yieldd: %v\n", err)
		os.Exit(1)
	}
}
