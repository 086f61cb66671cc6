package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"

	"github.com/andesco/unblocker/handlers"
	"github.com/andesco/unblocker/pkg/ladderlib"
)

func main() {
	parser := argparse.NewParser("unblocker", "Serves proxied pages with the in-page URL rewrite engine")

	configPath := parser.String("c", "config", &argparse.Options{
		Required: false,
		Default:  os.Getenv("CONFIG"),
		Help:     "Path to a YAML config file",
	})
	port := parser.String("p", "port", &argparse.Options{
		Required: false,
		Help:     "Port the server listens on (overrides config)",
	})
	ruleset := parser.String("r", "ruleset", &argparse.Options{
		Required: false,
		Help:     "Ruleset file or directory, ';' separated (overrides config)",
	})
	assets := parser.String("a", "assets", &argparse.Options{
		Required: false,
		Help:     "Directory holding unblocker.wasm and wasm_exec.js (overrides config)",
	})
	verbose := parser.Flag("v", "verbose", &argparse.Options{
		Help: "Log every proxied URL and enable engine debug logging",
	})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	cfg, err := ladderlib.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *ruleset != "" {
		cfg.Ruleset = *ruleset
	}
	if *assets != "" {
		cfg.AssetDir = *assets
	}
	if *verbose {
		cfg.LogURLs = true
		cfg.EngineDebug = true
		cfg.Log.Level = "debug"
	}

	logger, closer, err := ladderlib.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
	defer closer.Close()

	l, err := ladderlib.NewLadder(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize ladder library")
	}

	app := handlers.NewApp(l, logger)
	logger.Info().Str("port", cfg.Port).Str("prefix", cfg.HTMLPrefix).Msg("listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
}
