// Package main provides the release watcher CLI application.
package main

import (
	"log"
	"os"

	"github.com/openjdk-ci/releasewatch/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
