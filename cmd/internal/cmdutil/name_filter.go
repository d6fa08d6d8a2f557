package cmdutil

import (
	"github.com/mdsync/mdsync/tablemeta"
	"github.com/spf13/cobra"
)

var tableFilter = tablemeta.DefaultFilterString

func RegisterNameFilterFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&tableFilter,
		"table-filter",
		tableFilter,
		"POSIX regexp filter for tables to action on",
	)
}

func TableFilter() string {
	return tableFilter
}
