package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/invoice-matcher/internal/adapters/filesystem"
)

func newFoldersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "folders CORPUS",
		Short: "List the first-level folders selectable with --folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folders, err := filesystem.Subfolders(args[0])
			if err != nil {
				return err
			}
			for _, f := range folders {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}
