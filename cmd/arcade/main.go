// Package main provides the arcade operator CLI. It works on the database and
// archive directly rather than through the HTTP API.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
