package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dbsweep/dbsweep/internal/collector"
	"github.com/dbsweep/dbsweep/internal/history"
	"github.com/spf13/cobra"
)

// RegisterCollectCommand adds the collect command.
func RegisterCollectCommand(root *cobra.Command) {
	var configPath string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Sweep all configured accounts and regions for RDS instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := loadRuntime(configPath)
			if err != nil {
				return err
			}

			factory, err := rt.buildFactory(ctx)
			if err != nil {
				return err
			}

			store, err := history.Open(rt.cfg.HistoryDBPath, rt.logger)
			if err != nil {
				return fmt.Errorf("opening history database: %w", err)
			}
			defer store.Close()

			sink := history.NewRetryingSink(store, rt.logger)
			orch := collector.New(rt.cfg, factory, sink, rt.logger)

			results, err := orch.CollectAll(ctx)
			if len(results) > 0 {
				printResults(results)
			}
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No instances found in any account.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: config.yml)")
	root.AddCommand(cmd)
}

func printResults(results map[string]*collector.Result) {
	accounts := make([]string, 0, len(results))
	for id := range results {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tINSTANCES\tCOLLECTED_AT")
	for _, id := range accounts {
		res := results[id]
		fmt.Fprintf(w, "%s\t%d\t%s\n", res.AccountID, res.Total, res.LocalTimestamp)
	}
	w.Flush()
}
