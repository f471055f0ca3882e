// Package cli wires configuration, logging and the REST engine into the
// ekaya-rest commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-rest/pkg/config"
	"github.com/ekaya-inc/ekaya-rest/pkg/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Version    string
}

// NewRootCommand creates the root command. version is stamped at build time.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:          "ekaya-rest",
		Short:        "REST interface for PostgreSQL tables",
		Long:         "ekaya-rest compiles REST requests into parameterized SQL and runs them under the caller's database role.",
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to config file (missing file means environment only)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.ConfigPath, o.Version)
}

// engineConfig maps the rest section onto engine options.
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		DefaultSchema:          cfg.REST.DefaultSchema,
		ExposedSchemas:         cfg.REST.ExposedSchemas,
		TransactionalWrites:    cfg.REST.TransactionalWrites,
		MaxRows:                cfg.REST.MaxRows,
		RejectSuspiciousValues: cfg.REST.RejectSuspiciousValues,
		AuditWrites:            cfg.REST.AuditWrites,
	}
}
