// Command gatekeeper runs an HTTP authentication gateway whose strategy
// chain is assembled from a registry of pluggable strategies.
//
// Configuration is read from a YAML file and GATEKEEPER_* environment
// variables (see package config). A .env file is loaded first when present.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
