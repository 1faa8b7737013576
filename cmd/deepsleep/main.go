// Package main is the single-binary entrypoint for deepsleep.
package main

import "github.com/deepsleep-project/deepsleep/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
