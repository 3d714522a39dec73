package main

import (
	"fmt"
	"os"

	"github.com/dbsweep/dbsweep/cmd/dbsweep/cli"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dbsweep",
		Short: "Multi-account RDS instance inventory collector",
		Long: `dbsweep sweeps every configured AWS account and region for RDS database
instances, normalizes what it finds into point-in-time snapshot records,
and appends each run to a local history database.

Accounts that cannot be reached are skipped, never fatal; a run only
fails when the broker itself is unusable or persistence breaks.`,
		Version:      version,
		SilenceUsage: true,
	}

	cli.RegisterCollectCommand(rootCmd)
	cli.RegisterValidateCommand(rootCmd)
	cli.RegisterHistoryCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
