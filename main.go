package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFlag  string
		envFileFlag string
		hostFlag    string
		portFlag    string
		dbFlag      string
		userFlag    string
		passFlag    string
		sslFlag     string
	)

	cmd := &cobra.Command{
		Use:   "pginspect",
		Short: "Read-only PostgreSQL introspection over MCP",
		Long: `pginspect is an MCP (Model Context Protocol) server, speaking JSON-RPC
over stdio, that exposes read-only PostgreSQL introspection tools:
schema and table listing, table structure, sample data, ad-hoc SELECT
queries, a full database structure resource, and a SQL generation prompt.

Connection settings come from flags, POSTGRES_* environment variables,
or an optional YAML config file, in that order of precedence.`,
		Version:       ServerVersion,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFileFlag != "" {
				if err := godotenv.Load(envFileFlag); err != nil {
					return errors.Wrapf(err, "load env file %s", envFileFlag)
				}
			} else {
				// A .env in the working directory is optional.
				_ = godotenv.Load()
			}

			cfg, err := LoadConfig(configFlag)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Host = hostFlag
			}
			if flags.Changed("port") {
				cfg.Port = portFlag
			}
			if flags.Changed("dbname") {
				cfg.Database = dbFlag
			}
			if flags.Changed("user") {
				cfg.User = userFlag
			}
			if flags.Changed("password") {
				cfg.Password = passFlag
			}
			if flags.Changed("sslmode") {
				cfg.SSLMode = sslFlag
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFlag, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&envFileFlag, "env-file", "", "path to .env file with POSTGRES_* variables")
	cmd.Flags().StringVar(&hostFlag, "host", DefaultHost, "database host")
	cmd.Flags().StringVar(&portFlag, "port", DefaultPort, "database port")
	cmd.Flags().StringVarP(&dbFlag, "dbname", "d", DefaultDatabase, "database name")
	cmd.Flags().StringVarP(&userFlag, "user", "u", DefaultUser, "database user")
	cmd.Flags().StringVar(&passFlag, "password", "", "database password")
	cmd.Flags().StringVar(&sslFlag, "sslmode", DefaultSSLMode, "sslmode connection parameter")

	return cmd
}

func runServer(parent context.Context, cfg *Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logError("Received shutdown signal")
		cancel()
	}()

	server, err := NewServer(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "create server")
	}
	defer server.Close()

	logError("%s started (read-only mode, database %q on %s:%s)",
		ServerName, cfg.Database, cfg.Host, cfg.Port)

	if err := server.Run(); err != nil {
		if err == context.Canceled {
			logError("Server shutdown gracefully")
			return nil
		}
		return err
	}
	return nil
}
