// Command is builds a distributed suffix array with induced sorting
// via B*-substrings.
package main

import (
	"context"
	"os"

	"github.com/distsa/distsa/induce"
	"github.com/distsa/distsa/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.Parse("is", os.Args[1:])
	if err != nil {
		return cli.Exit(err)
	}
	err = cli.RunBuild(context.Background(), "is", cfg, induce.Build)
	return cli.Exit(err)
}
