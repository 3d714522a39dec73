package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dbsweep/dbsweep/internal/history"
	"github.com/spf13/cobra"
)

// RegisterHistoryCommand adds the history command.
func RegisterHistoryCommand(root *cobra.Command) {
	var (
		configPath string
		days       int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "history <account-id>",
		Short: "Show recent collection runs for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(configPath)
			if err != nil {
				return err
			}

			store, err := history.Open(rt.cfg.HistoryDBPath, rt.logger)
			if err != nil {
				return fmt.Errorf("opening history database: %w", err)
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Printf("No runs recorded for %s in the last %d days.\n", args[0], days)
				return nil
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tCOLLECTED_AT\tINSTANCES")
			for _, rec := range records {
				run := rec.RunUUID
				if len(run) > 8 {
					run = run[:8]
				}
				fmt.Fprintf(w, "%s\t%s\t%d\n", run, rec.LocalTimestamp, rec.Total)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: config.yml)")
	cmd.Flags().IntVar(&days, "days", 7, "history window in days")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit full records as JSON")
	root.AddCommand(cmd)
}
