package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IBM/arcade/pkg/archive"
	"github.com/IBM/arcade/pkg/importer"
	"github.com/IBM/arcade/pkg/jobs"
	"github.com/IBM/arcade/pkg/store"
)

var version = "dev"

// app carries the resolved configuration shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "arcade",
		Short: "Operate the ARCADE ephemeris store",
		Long: `arcade imports orbit ephemeris archives, manages reader principals and
inspects stored records.

Every flag can also be set through an ARCADE_ prefixed environment variable
(--db-dsn becomes ARCADE_DB_DSN) or a YAML file passed with --config.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "YAML config file")
	flags.String("db-type", "sqlite", "Database type: sqlite, postgres or mysql")
	flags.String("db-dsn", "arcade.db", "Database connection string")
	flags.String("archive-backend", string(archive.BackendS3), "Archive backend: s3 or filesystem")
	flags.String("archive-root", "./data", "Directory served by the filesystem archive backend")
	flags.String("sources-file", "", "YAML file listing import sources (default: built-in sources)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.StringP("output", "o", "table", "Output format: table, json, yaml")
	_ = a.v.BindPFlags(flags)

	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newComplianceCmd(a))
	rootCmd.AddCommand(newPrincipalCmd(a))
	rootCmd.AddCommand(newLatestCmd(a))
	rootCmd.AddCommand(newMigrateCmd(a))
	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	a.v.SetEnvPrefix("arcade")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", a.cfgFile, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func (a *app) storeConfig() *store.Config {
	cfg := store.DefaultConfig()
	cfg.Type = strings.ToLower(a.v.GetString("db-type"))
	cfg.DSN = a.v.GetString("db-dsn")
	cfg.Debug = a.v.GetString("log-level") == "debug"
	return cfg
}

// openStore opens and migrates the database, including the job tables the
// server shares it with.
func (a *app) openStore(ctx context.Context) (*store.Handle, error) {
	return store.Open(ctx, a.storeConfig(), a.logger, jobs.Models()...)
}

func (a *app) archiveConfig() *archive.Config {
	cfg := archive.ConfigFromEnv()
	cfg.Backend = archive.Backend(strings.ToLower(a.v.GetString("archive-backend")))
	cfg.Root = a.v.GetString("archive-root")
	return cfg
}

func (a *app) sources() ([]importer.Source, error) {
	return importer.LoadSources(a.v.GetString("sources-file"))
}

func (a *app) output() string {
	return a.v.GetString("output")
}

func (a *app) print(w io.Writer, v any, headers []string, rows [][]string) error {
	switch a.output() {
	case "json":
		return printJSON(w, v)
	case "yaml":
		return printYAML(w, v)
	case "table", "":
		printTable(w, headers, rows)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", a.output())
	}
}
