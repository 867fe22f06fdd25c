package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _                                  _ _
  | |__  _ __ _____      _____  ___  | (_) __ _ _ __ _   _
  | '_ \| '__/ _ \ \ /\ / / __|/ _ \/ _` + "`" + ` | |/ _` + "`" + ` | '__| | | |
  | |_) | | | (_) \ V  V /\__ \  __/ (_| | | (_| | |  | |_| |
  |_.__/|_|  \___/ \_/\_/ |___/\___|\__,_|_|\__,_|_|   \__, |
                                                      |___/
  Daily browsing history for your notes vault

  Usage: browsediary <command> [options]
         browsediary --help`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	os.Exit(run(os.Args))
}

// run executes the CLI and returns the process exit code. SIGINT and SIGTERM
// cancel the context so deferred cleanup still runs before exit.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newCLIApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
