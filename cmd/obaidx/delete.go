package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	var subtree bool
	cmd := &cobra.Command{
		Use:   "delete <dn>",
		Short: "Delete an entry or a whole subtree",
		Long: `The delete command removes a leaf entry. With --subtree it removes the
entry and everything below it, subject to the configured
subtreeDeleteSizeLimit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ec, _, _, err := opts.open()
			if err != nil {
				return err
			}
			defer ec.Close()

			if !subtree {
				if err := ec.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted 1 entry")
				return nil
			}
			n, err := ec.DeleteSubtree(cmd.Context(), args[0])
			if n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&subtree, "subtree", false, "Delete the entry and all its descendants")
	return cmd
}
