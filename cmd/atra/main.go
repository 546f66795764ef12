// Command atra crawls the web one host at a time, writing WARC output
// plus a content-addressed big-file store under a configurable state
// directory.
package main

import (
	"os"

	"github.com/atracrawl/atra/internal/cli"
)

func main() {
	os.Exit(int(cli.Execute()))
}
