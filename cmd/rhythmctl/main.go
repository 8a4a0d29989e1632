// rhythmctl is the operator tool for KeyRhythm Core.
//
// Usage:
//
//	rhythmctl import [-config path] [-dry-run] users.json
//	rhythmctl replay [-server url] script.yaml
//	rhythmctl watch  [-config path] [-action register|login]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// errUsage marks a command line that could not be understood.
var errUsage = errors.New("usage")

const usage = `rhythmctl - KeyRhythm Core operator tool

Commands:
  import   load a legacy users.json document into the credential store
  replay   replay a recorded key-event script against a running server
  watch    stream attempt events from the MQTT broker

Run "rhythmctl <command> -h" for command flags.
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run dispatches args to a subcommand.
func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(errOut, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "import":
		cfg, err := parseImportConfig(rest, errOut)
		if err != nil {
			return err
		}
		return runImport(ctx, cfg, out)
	case "replay":
		cfg, err := parseReplayConfig(rest, errOut)
		if err != nil {
			return err
		}
		return runReplay(ctx, cfg, out)
	case "watch":
		cfg, err := parseWatchConfig(rest, errOut)
		if err != nil {
			return err
		}
		return runWatch(ctx, cfg, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprintf(errOut, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}
