package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var checkInput string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a layout file and print the computed regions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := readLayout(checkInput)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tNAME\tTYPE\tSIZE\tSLOTS\tADDR\tEND")
		for _, p := range l.Params {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n", p.Index, p.Name, p.Type, p.Size, p.Count, p.Addr, p.End)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "used %d of %d bytes\n", l.End(), l.MediumSize)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkInput, "input", "i", "layout.yaml", "layout file")
	rootCmd.AddCommand(checkCmd)
}
