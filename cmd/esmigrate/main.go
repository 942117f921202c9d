package main

import "github.com/rflorenc/esmigrate/internal/cli"

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.BuildDate = date
	cli.Execute()
}
