package cmd

import (
	"fmt"
	"os"

	"github.com/mdsync/mdsync/cmd/compare"
	"github.com/mdsync/mdsync/cmd/dump"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mdsync",
	Short: "Master data snapshots with portable keys",
	Long: `mdsync dumps a referentially consistent set of tables with autoincrement
keys replaced by generated surrogates, and compares snapshots record by record.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dump.Command())
	rootCmd.AddCommand(compare.Command())
}
