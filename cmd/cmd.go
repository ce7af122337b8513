// Package cmd wires configuration, logging and the pipeline into the bkam
// command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bkam-rates/config"
	"bkam-rates/db"
	"bkam-rates/logger"
	"bkam-rates/pipeline"
	"bkam-rates/sheets"
	"bkam-rates/storage"
)

// Version is set at build time with -ldflags "-X bkam-rates/cmd.Version=..."
var Version = "dev"

// errFetchFailed is returned after the failure notice has been printed
var errFetchFailed = errors.New("fetch failed")

type options struct {
	configPath string
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFetchFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// NewRootCmd builds the bkam command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "bkam",
		Short:         "Bank Al-Maghrib treasury reference rates downloader.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to the configuration file")

	rootCmd.AddCommand(newFetchCmd(opts), newBotCmd(opts), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bkam %s\n", Version)
		},
	}
}

// app holds what every command needs
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	pipeline *pipeline.Pipeline
	database *db.DB
	closers  []func() error
}

// newApp loads configuration and builds the pipeline with every sink the
// configuration enables. Optional sinks that fail to initialize are skipped.
func newApp(ctx context.Context, opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, closers: []func() error{closeLog}}
	sugar := log.Sugar()

	var sinks []storage.TableSink
	if cfg.Sheets.SpreadsheetURL != "" {
		writer, err := sheets.NewWriter(ctx, cfg.Sheets.SpreadsheetURL, cfg.Sheets.CredentialsPath, log)
		if err != nil {
			sugar.Warnf("Google Sheets disabled: %v", err)
		} else {
			sinks = append(sinks, writer.WithSource(pipeline.NewSource(cfg.Source)))
		}
	}
	if cfg.Database.URL != "" {
		database, err := db.NewDB(ctx, cfg.Database.URL, log)
		if err != nil {
			sugar.Warnf("Database disabled: %v", err)
		} else {
			a.database = database
			a.closers = append(a.closers, database.Close)
			sinks = append(sinks, database)
		}
	}

	p, err := pipeline.New(cfg, log, pipeline.WithSinks(sinks...))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

// Close releases resources in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
