package cli

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/distsa/distsa/distribute"
	"github.com/distsa/distsa/index"
	"github.com/distsa/distsa/internal/obslog"
	"github.com/distsa/distsa/sacheck"
	"github.com/pkg/errors"
)

// Builder is the per-algorithm suffix array construction entry point:
// induce.Build or pdd.Build, both of this shape.
type Builder func(ctx context.Context, c comm.Comm, text container.DistributedString) ([]index.I, error)

// RunBuild drives one full run of algo (distribute input, build SA,
// write output, optionally check) across cfg.PEs logical PEs, printing
// the single stdout result line from rank 0 on success.
func RunBuild(ctx context.Context, algo string, cfg Config, build Builder) error {
	totalSize, reader, closeFn, err := openInput(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	start := time.Now()
	var resultLine string
	err = Run(ctx, cfg, func(ctx context.Context, c comm.Comm) error {
		log := obslog.New(algo, c.Rank(), c.Size())

		var local []byte
		var offset index.I
		if cfg.Input == "random" {
			log.Phase("distribute-random", totalSize)
			local, offset = distribute.Random(ctx, c, totalSize, defaultSeed)
		} else {
			log.Phase("distribute-file", totalSize)
			local, offset, err = distribute.Text(ctx, c, reader, totalSize)
			if err != nil {
				return log.Fatal("distribute-file", err)
			}
		}
		text := container.DistributedString{Local: local, Offset: offset, Total: index.From(uint64(totalSize))}

		log.Phase("build", totalSize)
		sa, err := build(ctx, c, text)
		if err != nil {
			return log.Fatal("build", err)
		}

		if cfg.Output != "" {
			log.Phase("write-output", int64(len(sa)))
			if err := writeOutput(ctx, cfg.Output, sa, c); err != nil {
				return log.Fatal("write-output", err)
			}
		}

		if cfg.Check {
			log.Phase("check", int64(len(sa)))
			saStart, err := c.ExPrefixSum(ctx, int64(len(sa)))
			if err != nil {
				return log.Fatal("check", err)
			}
			if err := sacheck.Check(ctx, c, sa, index.From(uint64(saStart)), text); err != nil {
				return log.Fatal("check", err)
			}
		}

		if c.Rank() == 0 {
			elapsed := time.Since(start).Milliseconds()
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			resultLine = ResultLine(algo, cfg.Input, totalSize, c.Size(), elapsed, int64(mem.Sys), int64(mem.TotalAlloc))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if resultLine != "" {
		os.Stdout.WriteString(resultLine + "\n")
	}
	return nil
}

// defaultSeed makes repeated `random` runs reproducible; Config has no
// --seed flag, so one fixed value stands in for "the run's seed".
const defaultSeed = 0x5a5a5a5a

func openInput(cfg Config) (totalSize int64, reader *os.File, closeFn func(), err error) {
	if cfg.Input == "random" {
		return cfg.Size, nil, nil, nil
	}
	f, err := os.Open(cfg.Input)
	if err != nil {
		return 0, nil, nil, errors.Wrapf(err, "cli: opening %s", cfg.Input)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, nil, nil, errors.Wrapf(err, "cli: stat %s", cfg.Input)
	}
	size := stat.Size()
	if cfg.Size > 0 && cfg.Size < size {
		size = cfg.Size
	}
	return size, f, func() { f.Close() }, nil
}

func writeOutput(ctx context.Context, path string, sa []index.I, c comm.Comm) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "cli: opening output %s", path)
	}
	defer f.Close()

	localStart, err := c.ExPrefixSum(ctx, int64(len(sa)))
	if err != nil {
		return errors.Wrap(err, "cli: output offset scan")
	}
	buf := index.Encode(sa)
	if _, err := f.WriteAt(buf, localStart*index.Size); err != nil {
		return errors.Wrap(err, "cli: parallel output write")
	}
	return nil
}
