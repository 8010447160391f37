// Package cmd implements sfctl, an operator CLI that works directly on the
// server's stores.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	sfapi "github.com/Sakib25800/framer-salesforce-api"
	echoapi "github.com/Sakib25800/framer-salesforce-api/api/echo"
	"github.com/Sakib25800/framer-salesforce-api/config"
	"github.com/Sakib25800/framer-salesforce-api/internal/server"
	"github.com/Sakib25800/framer-salesforce-api/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const appName = "sfctl"

// app is what every subcommand runs against.
type app struct {
	logger   log.Logger
	backends *server.Backends
	stores   *sfapi.Stores
	services echoapi.Services
}

// openApp loads the server configuration and opens its stores. Tests replace
// it.
var openApp = func(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := log.Setup(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		return nil, err
	}

	backends, err := server.OpenBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stores := server.NewStores(cfg, backends)
	services, err := server.NewServices(cfg, stores, server.NewOutboundClient(cfg))
	if err != nil {
		backends.Close(ctx)
		return nil, err
	}

	return &app{logger: logger, backends: backends, stores: stores, services: services}, nil
}

type (
	appFunc   func() *app
	printFunc func(cmd *cobra.Command, v any) error
)

// NewRootCmd builds the sfctl command tree.
func NewRootCmd() *cobra.Command {
	var (
		current *app
		output  string
	)

	rootCmd := &cobra.Command{
		Use:          appName,
		Short:        "sfctl inspects and manages the Salesforce API's stored state",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch output {
			case "yaml", "json":
			default:
				return fmt.Errorf("unsupported output format %q", output)
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			current = a
			cmd.SetContext(log.WithContext(cmd.Context(), a.logger))

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if current != nil {
				current.backends.Close(cmd.Context())
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "yaml", "output format (yaml or json)")

	get := func() *app { return current }
	printer := func(cmd *cobra.Command, v any) error { return printOutput(cmd.OutOrStdout(), output, v) }

	rootCmd.AddCommand(
		newLogoutCmd(get),
		newFormsCmd(get, printer),
		newKeysCmd(get, printer),
	)

	return rootCmd
}

func printOutput(w io.Writer, format string, v any) error {
	var (
		out []byte
		err error
	)

	if format == "json" {
		out, err = json.MarshalIndent(v, "", "  ")
		out = append(out, '\n')
	} else {
		out, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	_, err = w.Write(out)

	return err
}
