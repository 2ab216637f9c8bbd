// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// flint is an interactive POSIX/bash-flavored shell built on top of
// flintsh's syntax, expand, interp, jobctl and lineedit packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/mattn/go-isatty"

	"flintsh/config"
	"flintsh/interp"
	"flintsh/lineedit"
	"flintsh/syntax"
)

var (
	app = kingpin.New("flint", "A POSIX/bash-flavored interactive shell.")

	command    = app.Flag("c", "command to be executed").Short('c').String()
	configPath = app.Flag("config", "path to a flintrc.toml config file, overriding the default search").String()
	noRC       = app.Flag("norc", "skip loading any config file, including one given with --config").Bool()
	scriptArgs = app.Arg("script", "script file to run, followed by its positional parameters").Strings()
)

func main() {
	app.Version(versionString())
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	err := runAll()
	var es interp.ExitStatus
	if errors.As(err, &es) {
		os.Exit(int(es))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionString() string {
	return "flint, a flintsh shell frontend"
}

func runAll() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath, *noRC)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	interactive := *command == "" && len(*scriptArgs) == 0 && isatty.IsTerminal(os.Stdin.Fd())

	opts := []interp.RunnerOption{
		interp.StdIO(os.Stdin, os.Stdout, os.Stderr),
		interp.Interactive(interactive),
	}
	for _, name := range cfg.Options {
		opts = append(opts, interp.Params("-o", name))
	}
	if interactive {
		opts = append(opts, interp.JobControlTTY(int(os.Stdin.Fd())))
	}
	r, err := interp.New(opts...)
	if err != nil {
		return err
	}

	switch {
	case *command != "":
		return run(ctx, r, strings.NewReader(*command), "")
	case len(*scriptArgs) > 0:
		path := (*scriptArgs)[0]
		if err := interp.Params((*scriptArgs)[1:]...)(r); err != nil {
			return err
		}
		return runPath(ctx, r, path)
	case interactive:
		return runInteractive(ctx, r, cfg)
	default:
		return run(ctx, r, os.Stdin, "")
	}
}

func run(ctx context.Context, r *interp.Runner, reader io.Reader, name string) error {
	prog, err := syntax.NewParser().Parse(reader, name)
	if err != nil {
		return err
	}
	r.Reset()
	return r.Run(ctx, prog)
}

func runPath(ctx context.Context, r *interp.Runner, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return run(ctx, r, f, path)
}

// runInteractive drives the read-eval-print loop through the lineedit
// editor, falling back to a bare term.IsTerminal check's negative case
// handled by the caller (runAll only reaches here when stdin is a tty).
func runInteractive(ctx context.Context, r *interp.Runner, cfg *config.Config) error {
	parser := syntax.NewParser()

	editor, err := lineedit.New(os.Stdin, os.Stdout,
		lineedit.WithHistory(cfg.HistoryFile, cfg.HistorySize),
		lineedit.WithPrompt(promptFunc(r, cfg)),
		lineedit.WithCompleter(lineedit.NewShellCompleter(r)),
	)
	if err != nil {
		// No usable tty after all (e.g. dumb terminal); degrade to line mode.
		return runLineMode(ctx, r, os.Stdin, os.Stdout)
	}
	defer editor.Close()

	var pending strings.Builder
	for {
		line, err := editor.ReadLine(ctx, func(buf string) bool {
			p := syntax.NewParser()
			_, perr := p.Parse(strings.NewReader(pending.String()+buf), "")
			return perr != nil && p.Incomplete()
		})
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		pending.WriteString(line)
		pending.WriteByte('\n')

		text := pending.String()
		prog, err := parser.Parse(strings.NewReader(text), "")
		if err != nil {
			if parser.Incomplete() {
				continue // wait for more input; PS2 is rendered by promptFunc
			}
			fmt.Fprintln(os.Stderr, err)
			pending.Reset()
			continue
		}
		pending.Reset()
		editor.AddHistory(strings.TrimSpace(text))

		if err := r.Run(ctx, prog); err != nil {
			return err
		}
		if r.Exited() {
			return nil
		}
		for _, notice := range r.Jobs.Notify() {
			fmt.Fprintln(os.Stdout, notice)
		}
	}
}

// runLineMode is the non-interactive fallback: read chain-by-chain from an
// io.Reader using the parser's own incremental sequence, exactly as
// mvdan.cc/sh/v3's cmd/gosh does without any line editor involved.
func runLineMode(ctx context.Context, r *interp.Runner, stdin io.Reader, stdout io.Writer) error {
	parser := syntax.NewParser()
	fmt.Fprint(stdout, "$ ")
	for stmts, err := range parser.InteractiveSeq(stdin) {
		if err != nil {
			return err
		}
		if parser.Incomplete() {
			fmt.Fprint(stdout, "> ")
			continue
		}
		for _, stmt := range stmts {
			err := r.Run(ctx, stmt)
			if r.Exited() {
				return err
			}
		}
		fmt.Fprint(stdout, "$ ")
	}
	return nil
}

func promptFunc(r *interp.Runner, cfg *config.Config) func(continuation bool) string {
	return func(continuation bool) string {
		if continuation {
			return cfg.PS2
		}
		return strings.NewReplacer(
			"\\w", r.Dir,
			"\\u", os.Getenv("USER"),
		).Replace(cfg.PS1)
	}
}
