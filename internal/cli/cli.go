// Package cli implements the flag parsing and PE orchestration shared
// by cmd/is and cmd/pdd: both binaries accept the same flags and
// differ only in which builder (induce.Build or pdd.Build) each PE
// goroutine calls.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/distsa/distsa/comm"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Config is the parsed command line for one run.
type Config struct {
	Input      string // path, or the literal "random"
	Size       int64
	Output     string
	Check      bool
	PEs        int
	Transport  string // "inproc" or "tcp"
	TCPHub     string // hub listen address, only used when Transport == "tcp"
	Discarding bool   // pdd only: run PDD's early-discard step each round
}

// Parse reads argv (excluding the program name) into a Config.
func Parse(algo string, argv []string) (Config, error) {
	fs := pflag.NewFlagSet(algo, pflag.ContinueOnError)
	size := fs.Int64P("size", "s", 0, "cap on text length read (0 = whole file); required with input \"random\"")
	output := fs.StringP("output", "o", "", "write the SA as packed little-endian I-records")
	check := fs.BoolP("check", "c", false, "verify the in-memory SA after construction (input and output files are not re-read)")
	pes := fs.IntP("pes", "p", 1, "number of logical PEs to run")
	transport := fs.String("transport", "inproc", "inproc or tcp")
	hub := fs.String("tcp-hub", "127.0.0.1:19500", "hub listen address when --transport=tcp")
	discarding := fs.BoolP("discarding", "d", true, "pdd only: discard records early once their rank is unique")

	if err := fs.Parse(argv); err != nil {
		return Config{}, errors.Wrap(err, "cli: flag parse")
	}
	args := fs.Args()
	if len(args) != 1 {
		return Config{}, errors.New("cli: exactly one positional input argument is required")
	}
	input := args[0]
	if input == "random" && *size <= 0 {
		return Config{}, errors.New("cli: --size is required and must be positive when input is \"random\"")
	}
	if *pes < 1 {
		return Config{}, errors.New("cli: --pes must be >= 1")
	}
	if *transport != "inproc" && *transport != "tcp" {
		return Config{}, errors.Errorf("cli: unknown transport %q", *transport)
	}

	return Config{
		Input:      input,
		Size:       *size,
		Output:     *output,
		Check:      *check,
		PEs:        *pes,
		Transport:  *transport,
		TCPHub:     *hub,
		Discarding: *discarding,
	}, nil
}

// PEFunc is the per-PE body every logical process runs once it has its
// comm.Comm.
type PEFunc func(ctx context.Context, c comm.Comm) error

// Run launches cfg.PEs logical PEs, under an errgroup.Group so the
// first PE error cancels the rest, and waits for all of them.
func Run(ctx context.Context, cfg Config, body PEFunc) error {
	switch cfg.Transport {
	case "tcp":
		return runTCP(ctx, cfg, body)
	default:
		return runInproc(ctx, cfg, body)
	}
}

func runInproc(ctx context.Context, cfg Config, body PEFunc) error {
	comms := comm.NewInProcGroup(cfg.PEs)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comms {
		c := c
		g.Go(func() error { return body(gctx, c) })
	}
	return g.Wait()
}

// runTCP launches one hub (also acting as rank 0) plus cfg.PEs-1 spoke
// goroutines dialing it, all within this process — a stand-in for
// running N separate child processes that keeps the single binary
// self-contained while still exercising the real TCP transport.
// ListenAndServeHub blocks until every spoke has connected, so it must
// run in its own goroutine alongside the dialers rather than before
// them; spokes retry their dial briefly since the listener may not
// have bound yet.
func runTCP(ctx context.Context, cfg Config, body PEFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hubComm, err := comm.ListenAndServeHub(gctx, cfg.TCPHub, cfg.PEs)
		if err != nil {
			return errors.Wrap(err, "cli: tcp hub listen")
		}
		return body(gctx, hubComm)
	})
	for rank := 1; rank < cfg.PEs; rank++ {
		rank := rank
		g.Go(func() error {
			spoke, err := dialWithRetry(gctx, cfg.TCPHub, rank, cfg.PEs)
			if err != nil {
				return errors.Wrapf(err, "cli: tcp dial rank %d", rank)
			}
			return body(gctx, spoke)
		})
	}
	return g.Wait()
}

func dialWithRetry(ctx context.Context, addr string, rank, size int) (comm.Comm, error) {
	const attempts = 50
	var lastErr error
	for i := 0; i < attempts; i++ {
		c, err := comm.DialSpoke(ctx, addr, rank, size)
		if err == nil {
			return c, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// ResultLine renders the single stdout result line printed on success.
func ResultLine(algo, input string, size int64, threads int, timeMs, memMax, memTotal int64) string {
	return fmt.Sprintf("algo=%s time_ms=%d input=%s size=%d threads=%d memory_max=%d memory_total=%d",
		algo, timeMs, input, size, threads, memMax, memTotal)
}

// Exit prints err to stderr (if non-nil) and returns the process exit
// code: 0 on success, 1 on any error.
func Exit(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}
