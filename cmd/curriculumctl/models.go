package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yungbote/curriculum-backend/internal/inference/registry"
)

func newModelsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.New(cmd.Context(), c.cfg.Models, c.log)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tPROVIDER\tBACKEND ID\tROLE")
			for _, m := range reg.Models() {
				role := ""
				switch m.Key {
				case reg.DefaultKey():
					role = "default"
				case reg.FallbackKey():
					role = "fallback"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Key, m.DisplayName, m.Provider, m.BackendID, role)
			}
			return tw.Flush()
		},
	}
}
