package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/marketboard/internal/logging"
	"github.com/JonMunkholm/marketboard/internal/storeclient"
)

// app carries the state shared by every subcommand.
type app struct {
	getenv func(string) string

	// httpClient, when set, replaces the client built from the config.
	httpClient *http.Client

	configPath string
	baseURL    string
	apiKey     string
	timeout    time.Duration
	verbose    bool

	cfg cliConfig
}

// newRootCommand builds the marketctl command tree.
func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "marketctl",
		Short:         "Parse market price sheets and manage stored reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default: user config dir/marketctl/config.yaml)")
	flags.StringVar(&a.baseURL, "url", "", "Report server base URL")
	flags.StringVar(&a.apiKey, "api-key", "", "API key for write operations")
	flags.DurationVar(&a.timeout, "timeout", 0, "Request timeout")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log requests to stderr")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		path, required := a.configPath, true
		if path == "" {
			path, required = defaultConfigPath(), false
		}
		cfg, err := loadConfig(path, required, a.getenv)
		if err != nil {
			return err
		}

		// Flags take precedence over the file and the environment.
		if cmd.Flags().Changed("url") {
			cfg.BaseURL = a.baseURL
		}
		if cmd.Flags().Changed("api-key") {
			cfg.APIKey = a.apiKey
		}
		if cmd.Flags().Changed("timeout") && a.timeout > 0 {
			cfg.Timeout = a.timeout
		}
		a.cfg = cfg

		if a.verbose {
			logger := logging.New(cmd.ErrOrStderr(), "debug", "text")
			cmd.SetContext(logging.IntoContext(cmd.Context(), logger))
		}
		return nil
	}

	rootCmd.AddCommand(
		parseCommand(a),
		pushCommand(a),
		latestCommand(a),
		listCommand(a),
		deleteCommand(a),
		queryCommand(a),
	)
	return rootCmd
}

// client returns a store client for the resolved configuration.
func (a *app) client() *storeclient.Client {
	hc := a.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: a.cfg.Timeout}
	}
	opts := []storeclient.Option{storeclient.WithHTTPClient(hc)}
	if a.cfg.APIKey != "" {
		opts = append(opts, storeclient.WithAPIKey(a.cfg.APIKey))
	}
	return storeclient.New(a.cfg.BaseURL, opts...)
}
