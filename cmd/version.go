package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd reports the version/commit/date baked in via main.go's
// ldflags (see main.go's var block).
func newVersionCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("orchkernel %s\n", displayVersion())
			if date != "" && date != "unknown" {
				fmt.Printf("built %s\n", date)
			}
			return nil
		},
	}
}
