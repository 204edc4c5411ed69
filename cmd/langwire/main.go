// Package main is a command-line driver for the langwire client runtime.
// It launches a configured language server, runs the initialize
// handshake, prints the server's capabilities, and shuts down cleanly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	langwire "github.com/dshills/langwire"
	"github.com/dshills/langwire/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		serverName  string
		root        string
		timeout     time.Duration
		verbose     bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "langwire.toml", "Path to configuration file")
	flag.StringVar(&serverName, "server", "", "Server name from the config registry")
	flag.StringVar(&root, "root", ".", "Workspace root")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Handshake timeout when the server entry sets no request_timeout_ms")
	flag.BoolVar(&verbose, "v", false, "Verbose (debug) logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("langwire %s (%s)\n", version, commit)
		return 0
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if verbose {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return 1
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && !verbose {
		log = log.Level(lvl)
	}

	if serverName == "" {
		log.Error().Msg("no server selected; pass -server <name>")
		return 2
	}
	sc, err := cfg.Server(serverName)
	if err != nil {
		log.Error().Err(err).Msg("unknown server")
		return 2
	}

	workDir := sc.WorkDir
	if workDir == "" {
		workDir = root
	}

	adapter := langwire.NewProcessAdapter(langwire.ProcessConfig{
		Command: sc.Command,
		Args:    sc.Args,
		Env:     sc.Env,
		WorkDir: workDir,
	}, langwire.WithProcessLogger(log))

	client := langwire.NewLanguageClient(adapter,
		langwire.WithClientLogger(log),
		langwire.WithInitializationOptions(sc.InitializationOptions),
	)

	reg, err := client.OnDiagnostics(func(p langwire.PublishDiagnosticsParams) {
		for _, d := range p.Diagnostics {
			log.Info().
				Str("uri", string(p.URI)).
				Int("line", d.Range.Start.Line).
				Str("source", d.Source).
				Msg(d.Message)
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to register diagnostics handler")
		return 1
	}
	defer reg.Release()

	ctx, cancel := context.WithTimeout(context.Background(), sc.Timeout(timeout))
	defer cancel()

	result, err := client.Initialize(ctx, root)
	if err != nil {
		log.Error().Err(err).Msg("initialize failed")
		return 1
	}
	if result.ServerInfo != nil {
		log.Info().Str("name", result.ServerInfo.Name).Str("version", result.ServerInfo.Version).Msg("server ready")
	}

	var pretty json.RawMessage = result.Capabilities
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err == nil {
		fmt.Println(string(out))
	}

	// Stay alive until interrupted or the server goes away.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signals:
		log.Info().Msg("interrupted, shutting down")
	case <-client.HasShutdown():
		log.Warn().Msg("server went away")
		return 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := client.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
		return 1
	}
	return 0
}
