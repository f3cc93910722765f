package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store reachability and breaker state",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	app := newApp(ctx, cfg)
	defer func() {
		_ = app.Stop(ctx)
	}()

	report := app.Health(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tNAME\tSTATUS\tDETAIL")

	for _, name := range sortedKeys(report.Stores) {
		s := report.Stores[name]
		_, _ = fmt.Fprintf(w, "store\t%s\t%s\t%s\n", name, s.Status, s.Error)
	}
	for _, name := range sortedKeys(report.Breakers) {
		b := report.Breakers[name]
		_, _ = fmt.Fprintf(w, "breaker\t%s\t%s\tfailures=%d\n", name, b.State, b.ConsecutiveFailures)
	}
	_, _ = fmt.Fprintf(w, "system\t-\t%s\t\n", report.SystemStatus)
	_ = w.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
