package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/23skdu/longbow-attnmock/internal/arrow_client"
	"github.com/23skdu/longbow-attnmock/internal/config"
	"github.com/23skdu/longbow-attnmock/internal/logger"
)

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg, dialFlight)
	if err != nil {
		logger.Log.Error("Fixture generation failed", "error", err)
		os.Exit(1)
	}
	for _, f := range res.Files {
		fmt.Println(f.Path)
	}
}

func dialFlight(cfg config.Config) (arrow_client.Publisher, error) {
	return arrow_client.NewFlightClient(cfg.FlightAddr, cfg.FlightTimeout)
}

// parseFlags starts from the chosen preset and overrides only the flags that
// were given on the command line.
func parseFlags(args []string, stderr io.Writer) (config.Config, error) {
	fs := flag.NewFlagSet("attnmock", flag.ContinueOnError)
	fs.SetOutput(stderr)

	preset := fs.String("preset", "cls", "Base fixture: "+strings.Join(config.PresetNames(), " or "))
	rows := fs.Int("rows", 0, "Image grid rows")
	cols := fs.Int("cols", 0, "Image grid columns")
	imageTokens := fs.Int("image-tokens", 0, "Image token count when no grid is given")
	imageToken := fs.String("image-token", config.DefaultImageToken, "Image placeholder token")
	prefix := fs.String("prefix", "", "Role prefix token, e.g. user: (empty for none)")
	classToken := fs.String("class-token", "", "Class token placed before the image block (empty for none)")
	leading := fs.String("leading", "", "Comma-separated text tokens before the image block")
	text := fs.String("text", "", "Comma-separated text tokens after the image block")
	heads := fs.Int("heads", 0, "Number of attention heads")
	seed := fs.Int64("seed", 0, "Seed of head 0; head h uses seed+h")
	precision := fs.Int("precision", 0, "Decimal digits kept in the output")
	imgURL := fs.String("url", "", "Example image URL stored in the fixture")
	out := fs.String("out", "", "Output file path")
	layout := fs.String("layout", "", "Output layout: single, split or arrow")
	flightAddr := fs.String("flight", "", "Arrow Flight address to publish the fixture to")
	flightTimeout := fs.Duration("flight-timeout", 0, "Timeout for the Flight publish")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	progress := fs.Bool("progress", false, "Show a progress bar while generating heads")
	verify := fs.Bool("verify", false, "Read the fixture back and re-check it after writing")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "Log format: console or json")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg, err := config.Preset(*preset)
	if err != nil {
		return config.Config{}, err
	}

	var gridSet bool
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rows":
			cfg.GridRows, gridSet = *rows, true
		case "cols":
			cfg.GridCols, gridSet = *cols, true
		case "image-tokens":
			cfg.ImageTokens = *imageTokens
		case "image-token":
			cfg.ImageToken = *imageToken
		case "prefix":
			cfg.RolePrefix = *prefix
		case "class-token":
			cfg.ClassToken = *classToken
		case "leading":
			cfg.LeadingText = splitTokens(*leading)
		case "text":
			cfg.TrailingText = splitTokens(*text)
		case "heads":
			cfg.Heads = *heads
		case "seed":
			cfg.SeedBase = *seed
		case "precision":
			cfg.Precision = *precision
		case "url":
			cfg.ImageURL = *imgURL
		case "out":
			cfg.Output = *out
		case "layout":
			cfg.Layout = config.Layout(strings.ToLower(*layout))
		case "flight":
			cfg.FlightAddr = *flightAddr
		case "flight-timeout":
			cfg.FlightTimeout = *flightTimeout
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		case "progress":
			cfg.Progress = *progress
		case "verify":
			cfg.Verify = *verify
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	// An explicit count without a grid replaces the preset's grid.
	if !gridSet && cfg.ImageTokens > 0 && cfg.HasGrid() && cfg.ImageTokens != cfg.NumImageTokens() {
		cfg.GridRows, cfg.GridCols = 0, 0
	}

	return cfg, nil
}

// splitTokens splits on commas without trimming, so leading spaces that mark
// word boundaries survive.
func splitTokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
