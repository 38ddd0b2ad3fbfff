package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/daskpool/internal/await"
	"github.com/seantiz/daskpool/internal/config"
)

var (
	awaitCompletion bool
	awaitTimeoutS   int
)

var awaitCmd = &cobra.Command{
	Use:   "await ID...",
	Short: "Wait for launched workers and print the outcome as JSON",
	Example: `  # Wait up to a minute for two workers to be running
  daskpool await 01J0... 01J1... --timeout 60

  # Wait for a batch job to finish
  daskpool await 01J0... --wait-for-completion --timeout 0`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAwait,
}

func init() {
	rootCmd.AddCommand(awaitCmd)

	awaitCmd.Flags().BoolVar(&awaitCompletion, "wait-for-completion", false, "wait for workers to exit successfully instead of running")
	awaitCmd.Flags().IntVar(&awaitTimeoutS, "timeout", -1, "deadline in seconds, 0 waits forever (default from DASKPOOL_AWAIT_TIMEOUT_S)")
}

func runAwait(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	timeout := awaitTimeoutS
	if timeout < 0 {
		timeout = cfg.AwaitTimeoutS
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := await.New(newClient(cfg), await.WithLogger(logger))
	res, err := a.Await(ctx, await.Request{
		IDs:               args,
		WaitForCompletion: awaitCompletion,
		TimeoutS:          timeout,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
