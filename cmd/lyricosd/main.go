package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lyricosd/internal/config"
	"lyricosd/internal/logging"

	"github.com/rs/zerolog/log"
)

// Global flags
var (
	configPath string
	dbPath     string
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the config file (default $XDG_CONFIG_HOME/lyricosd/config.toml)")
	flag.StringVar(&dbPath, "db", "", "Path to the lyric index database (overrides store.path)")
	flag.Usage = printUsage
}

// errUsage makes main exit with status 2 after printing usage.
var errUsage = errors.New("usage")

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lyricosd: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.App.LogLevel)
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := args[0], args[1:]
	log.Debug().Str("command", command).Msg("Executing command")

	switch command {
	case "index":
		err = handleIndex(ctx, cfg, rest)
	case "now":
		err = handleNow(ctx, cfg, rest)
	case "watch":
		err = handleWatch(ctx, cfg, rest)
	case "normalize":
		err = handleNormalize(rest)
	case "prune":
		err = handlePrune(ctx, cfg, rest)
	case "stats":
		err = handleStats(ctx, cfg, rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		err = errUsage
	}

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		printUsage()
		stop()
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "lyricosd %s: %v\n", command, err)
		stop()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: lyricosd [-config file] [-db file] <command> [args]

Commands:
  index [-workers N] [-strict] <dir>   index every track in <dir> that has a .lrc file
  now [-all]                           print the line for what is playing now
  watch                                publish the current line until interrupted
  normalize [-sort] <file.lrc>         rewrite a lyric file in canonical form
  prune                                drop index entries whose lyric file is gone
  stats [-list]                        show the index size

Global flags:
`)
	flag.PrintDefaults()
}
