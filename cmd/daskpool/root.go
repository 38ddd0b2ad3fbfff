package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/daskpool/internal/config"
	"github.com/seantiz/daskpool/internal/remote"
)

// Version is the CLI version.
const Version = "0.1.0"

var (
	apiURL string
	debug  bool
)

var rootCmd = &cobra.Command{
	Use:           "daskpool",
	Short:         "Start Dask clusters on remotely launched workers",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "worker-management API base URL (default from DASKPOOL_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig applies the persistent flags on top of the environment.
func loadConfig() config.Config {
	cfg := config.Load()
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if debug {
		cfg.LogLevel = slog.LevelDebug
	}
	return cfg
}

func newClient(cfg config.Config) *remote.HTTPClient {
	return remote.NewHTTPClient(cfg.APIURL)
}
