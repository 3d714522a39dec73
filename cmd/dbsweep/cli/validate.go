package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// RegisterValidateCommand adds the validate command.
func RegisterValidateCommand(root *cobra.Command) {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check credentials for every configured account without collecting",
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

			if !factory.ValidateAccess(ctx) {
				return fmt.Errorf("broker-level access check failed; verify the base credentials")
			}
			fmt.Println("Broker-level access check passed.")

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tSTATUS\tEXPIRY")
			failed := 0
			for _, accountID := range rt.cfg.Accounts {
				sess := factory.Broker().GetSession(ctx, accountID)
				if sess == nil {
					failed++
					fmt.Fprintf(w, "%s\tFAILED\t-\n", accountID)
					continue
				}
				expiry := "(strategy-managed)"
				if !sess.Expiry.IsZero() {
					expiry = sess.Expiry.Local().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\tOK\t%s\n", accountID, expiry)
			}
			w.Flush()

			if failed > 0 {
				return fmt.Errorf("%d of %d accounts failed validation", failed, len(rt.cfg.Accounts))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: config.yml)")
	root.AddCommand(cmd)
}
