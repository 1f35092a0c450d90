// Package main provides the convoexport command: it walks a worklist of
// conversation URLs, exports each transcript through an already running
// Chrome reached over CDP and packs the results into zip batches.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/convoexport/pkg/browser"
	"github.com/entrhq/convoexport/pkg/config"
	"github.com/entrhq/convoexport/pkg/logging"
	"github.com/entrhq/convoexport/pkg/supervisor"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration. Non-empty values override
// the config file and environment.
type CLIConfig struct {
	ConfigFile    string
	EnvFile       string
	Worklist      string
	Sheet         string
	Column        string
	CDPEndpoint   string
	BatchSize     int
	Diagnostics   string
	ReportFile    string
	InstallDriver bool
	ShowVersion   bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("convoexport v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("Export failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.EnvFile, "env-file", ".env", "Dotenv file with CONVOEXPORT_* overrides")
	flag.StringVar(&cli.Worklist, "worklist", "", "Spreadsheet (.xlsx or .csv) listing conversation URLs")
	flag.StringVar(&cli.Sheet, "sheet", "", "Worksheet name inside the workbook")
	flag.StringVar(&cli.Column, "column", "", "Header of the column holding the URLs")
	flag.StringVar(&cli.CDPEndpoint, "cdp", "", "Chrome remote-debugging endpoint")
	flag.IntVar(&cli.BatchSize, "batch-size", 0, "Transcripts per zip archive")
	flag.StringVar(&cli.Diagnostics, "diagnostics", "", "When to snapshot failures: first_failure, final_failure or never")
	flag.StringVar(&cli.ReportFile, "report", "", "Write a JSON run report to this file")
	flag.BoolVar(&cli.InstallDriver, "install-driver", false, "Install the Playwright driver before connecting")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "convoexport - bulk conversation transcript exporter\n\n")
		fmt.Fprintf(os.Stderr, "Usage: convoexport [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start Chrome with remote debugging, log in, then\n")
		fmt.Fprintf(os.Stderr, "  convoexport -worklist links.xlsx -sheet convos -column url\n\n")
		fmt.Fprintf(os.Stderr, "  # Use a config file and a different browser\n")
		fmt.Fprintf(os.Stderr, "  convoexport -config convoexport.yaml -cdp http://10.0.0.5:9222\n\n")
	}

	flag.Parse()
	return cli
}

// applyOverrides copies the flags that were set onto cfg.
func applyOverrides(cfg *config.Config, cli *CLIConfig) {
	if cli.Worklist != "" {
		cfg.Worklist.Path = cli.Worklist
	}
	if cli.Sheet != "" {
		cfg.Worklist.Sheet = cli.Sheet
	}
	if cli.Column != "" {
		cfg.Worklist.Column = cli.Column
	}
	if cli.CDPEndpoint != "" {
		cfg.Browser.CDPEndpoint = cli.CDPEndpoint
	}
	if cli.BatchSize > 0 {
		cfg.Output.BatchSize = cli.BatchSize
	}
	if cli.Diagnostics != "" {
		cfg.Output.Diagnostics = config.DiagnosticsPolicy(cli.Diagnostics)
	}
	if cli.ReportFile != "" {
		cfg.Output.ReportFile = cli.ReportFile
	}
	if cli.InstallDriver {
		cfg.Browser.InstallDriver = true
	}
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := config.Load(cli.ConfigFile, cli.EnvFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyOverrides(cfg, cli)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// On error the logger has already fallen back to stderr.
	logger, _ := logging.NewLogger(cfg.Logging.File, "supervisor", level)
	defer logger.Close()

	fmt.Printf("convoexport starting (run %s, worklist %s, browser %s)\n",
		logger.RunID(), cfg.Worklist.Path, cfg.Browser.CDPEndpoint)
	if path := logger.LogPath(); path != "" {
		fmt.Printf("Errors are logged to %s\n", path)
	}
	logger.Infof("starting run against %s", cfg.Browser.CDPEndpoint)

	connector := browser.NewCDPConnector(cfg.Browser.CDPEndpoint, cfg.Browser.InstallDriver)
	sup := supervisor.New(cfg, connector, logger)

	if _, err := sup.Execute(ctx); err != nil {
		return err
	}
	return nil
}
