// Package main provides the finguard native messaging host and its
// companion commands.
//
// The browser starts finguard with the calling extension's origin as the
// first argument (Chrome) or the path of the host manifest followed by
// the extension id (Firefox); both start the host. Stdout then carries
// protocol frames, so every log line goes to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const version = "0.3.0"

// globalOptions are accepted before any subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && isBrowserLaunch(args[0]) {
		opts := globalOptions{configPath: os.Getenv("FINGUARD_CONFIG"), logLevel: envOr("FINGUARD_LOG_LEVEL", "info")}
		logger := newLogger(stderr, opts.logLevel)
		if err := runServe(ctx, opts, ownIDFromLaunch(args), stdin, stdout, logger); err != nil {
			logger.Error("native host stopped", "error", err)
			return 1
		}
		return 0
	}

	fs := flag.NewFlagSet("finguard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := globalOptions{}
	fs.StringVar(&opts.configPath, "config", os.Getenv("FINGUARD_CONFIG"), "Path to the configuration file (or set FINGUARD_CONFIG; built-in defaults if empty)")
	fs.StringVar(&opts.logLevel, "log-level", envOr("FINGUARD_LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
	showVersion := fs.Bool("version", false, "Show version and exit")
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintf(stdout, "finguard v%s\n", version)
		return 0
	}

	logger := newLogger(stderr, opts.logLevel)
	rest := fs.Args()
	cmd := "serve"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx, opts, "", stdin, stdout, logger)
	case "match":
		err = runMatch(opts, rest, stdout)
	case "check-config":
		err = runCheckConfig(opts, stdout)
	case "schema":
		err = runSchema(stdout)
	case "review":
		err = runReview(ctx, opts, stdout, logger)
	case "status":
		err = runStatus(ctx, opts, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "finguard %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "finguard - disables browser extensions while financial sites are open\n\n")
	fmt.Fprintf(w, "Usage: finguard [options] <command> [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  serve              Run the native messaging host (default)\n")
	fmt.Fprintf(w, "  match <url>...     Report which financial pattern each URL matches\n")
	fmt.Fprintf(w, "  check-config       Validate the configuration\n")
	fmt.Fprintf(w, "  schema             Print the configuration JSON schema\n")
	fmt.Fprintf(w, "  review             Review quarantined extensions in the terminal\n")
	fmt.Fprintf(w, "  status             Print suppressed and quarantined extensions\n")
	fmt.Fprintf(w, "\nOptions:\n")
	fs.PrintDefaults()
}

// isBrowserLaunch reports whether arg is what a browser passes when it
// starts a native messaging host.
func isBrowserLaunch(arg string) bool {
	return strings.HasPrefix(arg, "chrome-extension://") || strings.HasSuffix(arg, ".json")
}

// ownIDFromLaunch extracts the calling extension's id from the launch
// arguments: the origin chrome-extension://<id>/ or Firefox's second
// argument.
func ownIDFromLaunch(args []string) string {
	if id, ok := strings.CutPrefix(args[0], "chrome-extension://"); ok {
		return strings.TrimSuffix(id, "/")
	}
	if len(args) > 1 {
		return args[1]
	}
	return ""
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
