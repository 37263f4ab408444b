package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := apiClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}

		fmt.Printf("Uptime: %.0fs\n\n", snap.UptimeSeconds)
		if len(snap.Operations) == 0 {
			fmt.Println("No operations recorded yet")
			return nil
		}

		names := make([]string, 0, len(snap.Operations))
		for name := range snap.Operations {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Printf("%-20s %-8s %-12s %-10s %-10s %s\n", "OPERATION", "COUNT", "TOTAL(ms)", "AVG(ms)", "MIN(ms)", "MAX(ms)")
		fmt.Println("--------------------------------------------------------------------------------")
		for _, name := range names {
			op := snap.Operations[name]
			fmt.Printf("%-20s %-8d %-12d %-10.1f %-10d %d\n",
				name, op.Count, op.TotalTimeMs, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
		}
		return nil
	},
}
