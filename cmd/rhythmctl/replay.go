package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/nerrad567/keyrhythm-core/internal/replay"
)

const defaultServer = "http://localhost:5000"

type replayConfig struct {
	Server string
	Script string
}

func parseReplayConfig(args []string, errOut io.Writer) (replayConfig, error) {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var cfg replayConfig
	fs.StringVar(&cfg.Server, "server", "", "server base URL (overrides the script)")
	if err := fs.Parse(args); err != nil {
		return replayConfig{}, errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "replay: expected exactly one script path")
		return replayConfig{}, errUsage
	}
	cfg.Script = fs.Arg(0)
	return cfg, nil
}

// runReplay prints the replayed vector and the server's answer. A rejected
// submission is a normal outcome and does not fail the command.
func runReplay(ctx context.Context, cfg replayConfig, out io.Writer) error {
	script, err := replay.Load(cfg.Script)
	if err != nil {
		return err
	}

	server := cfg.Server
	if server == "" {
		server = script.Server
	}
	if server == "" {
		server = defaultServer
	}

	res, times, err := replay.Run(ctx, replay.NewClient(server), script)
	if err != nil {
		return err
	}

	if times != nil {
		fmt.Fprintf(out, "times:   %v\n", []float64(times))
	}
	status := "rejected"
	if res.OK {
		status = "accepted"
	}
	if res.Status != 0 {
		fmt.Fprintf(out, "%s %s (%d): %s\n", script.Mode, status, res.Status, res.Message)
	} else {
		fmt.Fprintf(out, "%s %s locally: %s\n", script.Mode, status, res.Message)
	}
	return nil
}
