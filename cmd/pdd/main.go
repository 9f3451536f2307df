// Command pdd builds a distributed suffix array with prefix doubling
// and discarding.
package main

import (
	"context"
	"os"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/distsa/distsa/index"
	"github.com/distsa/distsa/internal/cli"
	"github.com/distsa/distsa/pdd"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.Parse("pdd", os.Args[1:])
	if err != nil {
		return cli.Exit(err)
	}
	build := func(ctx context.Context, c comm.Comm, text container.DistributedString) ([]index.I, error) {
		return pdd.Build(ctx, c, text, cfg.Discarding)
	}
	err = cli.RunBuild(context.Background(), "pdd", cfg, build)
	return cli.Exit(err)
}
