package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TFMV/treewatch/watch"
)

// kindsCmd lists the event names accepted by --events
var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List event kinds and their masks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tMASK")
		for _, k := range watch.Kinds() {
			mask, err := watch.MaskFor(k)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t0x%08x\n", k, uint32(mask))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
