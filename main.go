package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sambeau/sorrel/config"
	"github.com/sambeau/sorrel/server"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("sorrel", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		configPath  = flags.String("config", "", "Path to config file")
		host        = flags.String("host", "", "Override listen host")
		port        = flags.Int("port", -1, "Override listen port (0 picks a free port)")
		noReload    = flags.Bool("no-reload", false, "Serve without live reload")
		proxyTo     = flags.String("proxy", "", "Forward /api requests to this upstream URL")
		quiet       = flags.Bool("quiet", false, "Only log warnings and errors")
		showVersion = flags.Bool("version", false, "Show version")
		showHelp    = flags.Bool("help", false, "Show help")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showHelp {
		printUsage(stdout)
		return nil
	}
	if *showVersion {
		fmt.Fprintf(stdout, "sorrel version %s\n", Version)
		return nil
	}

	folders := flags.Args()
	if len(folders) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determining current directory: %w", err)
		}
		folders = []string{cwd}
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath, folders, getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply CLI overrides
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port >= 0 {
		cfg.Server.Port = *port
	}
	if *quiet {
		cfg.Logging.Quiet = true
		cfg.Logging.Level = "warn"
	}
	if *noReload {
		cfg.LiveReload.Enabled = false
	}
	if *proxyTo != "" {
		cfg.Proxy.Enabled = true
		cfg.Proxy.Upstream = *proxyTo
		if cfg.Proxy.BasePath == "" {
			cfg.Proxy.BasePath = "/api"
		}
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	log := server.NewLogger(stdout, stderr, cfg.Logging.Level, cfg.Logging.Format)
	manager := server.NewManager(cfg, log)
	if err := manager.Start(cfg.Folders); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	<-ctx.Done()
	fmt.Fprintln(stdout, "shutting down")
	manager.Stop()
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `sorrel - A live-reloading static server for local development

Usage:
  sorrel [options] [folder ...]

Options:
  --config PATH    Path to config file (default: auto-detect)
  --host HOST      Override listen host
  --port PORT      Override listen port (0 picks a free port)
  --no-reload      Serve without live reload
  --proxy URL      Forward /api requests to an upstream URL
  --quiet          Only log warnings and errors
  --version        Show version
  --help           Show this help

Config Resolution:
  1. --config flag
  2. SORREL_CONFIG environment variable
  3. ./sorrel.yaml
  4. ~/.config/sorrel/sorrel.yaml
  A sorrel.yaml inside the first served folder overrides all of the above.

Examples:
  sorrel                    Serve the current directory on port 5500
  sorrel ./site ./assets    Serve two folders, first match wins
  sorrel --port 0 ./site    Let the OS pick a free port

`)
}
