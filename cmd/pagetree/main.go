// Command pagetree inspects and edits a pagetree store file.
//
// Usage:
//
//	pagetree -file store.db -size 16777216 put users alice str:admin
//	pagetree -file store.db get users alice
//	pagetree -file store.db export backup.snap -compression lz4
//	pagetree -file restored.db -size 16777216 import backup.snap
//	pagetree -file store.db bench -workers 8 -ops 100000 -rate 50000
//
// Values are written as kind:payload with the kinds int, long (a counter),
// str and blob (hex). A value without a kind prefix is a string.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
)

var errUsage = errors.New("usage")

type globalFlags struct {
	file     string
	size     int64
	pageSize int
	verbose  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) || errors.Unwrap(err) != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pagetree", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var g globalFlags
	fs.StringVar(&g.file, "file", "", "store file")
	fs.Int64Var(&g.size, "size", 0, "store size in bytes (0 = existing file size)")
	fs.IntVar(&g.pageSize, "page-size", 4096, "page size for new stores")
	fs.BoolVar(&g.verbose, "v", false, "verbose logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pagetree -file F [-size N] <command> [args]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-28s %s\n", c.usage, c.help)
		}
		fmt.Fprintf(stderr, "\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if g.file == "" || fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			env := &env{global: g, stdout: stdout, stderr: stderr}
			if g.verbose {
				env.logLevel = slog.LevelDebug
			} else {
				env.logLevel = slog.LevelWarn
			}
			return c.run(ctx, env, fs.Args()[1:])
		}
	}

	fmt.Fprintf(stderr, "unknown command %q\n", name)
	fs.Usage()
	return errUsage
}
