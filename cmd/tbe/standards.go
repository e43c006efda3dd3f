package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/procurepro/tbe/internal/compliance"
)

func standardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "standards",
		Short: "List the catalogued ISO standards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output == "json" {
				return writeIndentedJSON(cmd.OutOrStdout(), map[string]any{
					"standards": compliance.Catalog(),
					"relations": compliance.DefaultRelations(),
				})
			}

			relations := compliance.DefaultRelations()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tTITLE\tRELATED")
			for _, s := range compliance.Catalog() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Code, s.Title, strings.Join(relations[s.Code], ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringP("output", "o", "text", "output format (text, json)")
	return cmd
}
