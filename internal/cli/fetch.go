package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/internal/control"
	"github.com/vietddude/resilience/internal/orchestrator"
)

var (
	fetchTimeout time.Duration
	fetchRefresh bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [key]",
	Short: "Read a single key through the resilient read path and print it",
	Args:  cobra.ExactArgs(1),
	Run:   runFetch,
}

func init() {
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 30*time.Second, "overall deadline for the read")
	fetchCmd.Flags().BoolVar(&fetchRefresh, "refresh", false, "skip the cache and local store")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	app := newApp(ctx, cfg)

	var opts []orchestrator.FetchOption
	if fetchRefresh {
		opts = append(opts, orchestrator.ForceRefresh())
	}

	var value control.Value
	err := runThenStop(app, func() error {
		var err error
		value, err = app.GetWith(ctx, args[0], opts...).Unwrap()
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch %q failed: %v\n", args[0], err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(value)
}
