package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [key]",
	Short: "Remove a key from the local store so the next read goes to the remote source",
	Args:  cobra.ExactArgs(1),
	Run:   runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	app := newApp(ctx, cfg)

	err := runThenStop(app, func() error {
		return app.Invalidate(ctx, args[0])
	})
	if err != nil {
		slog.Error("Failed to invalidate key", "key", args[0], "error", err)
		os.Exit(1)
	}
	fmt.Printf("Invalidated %q in namespace %q\n", args[0], cfg.Orchestrator.Namespace)
}
