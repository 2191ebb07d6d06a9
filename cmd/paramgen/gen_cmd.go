package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var genFlags struct {
	in, out, pkg, nvstore string
}

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate Go constants and an nvstore.Table from a layout file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := readLayout(genFlags.in)
		if err != nil {
			return err
		}
		src, err := render(l, filepath.Base(genFlags.in), genFlags.pkg, genFlags.nvstore)
		if err != nil {
			return err
		}
		if err := os.WriteFile(genFlags.out, src, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d params, %d of %d bytes\n",
			genFlags.out, len(l.Params), l.End(), l.MediumSize)
		return nil
	},
}

func init() {
	f := genCmd.Flags()
	f.StringVarP(&genFlags.in, "input", "i", "layout.yaml", "layout file")
	f.StringVarP(&genFlags.out, "output", "o", "layout_gen.go", "generated Go file")
	f.StringVarP(&genFlags.pkg, "package", "p", "params", "package name of the generated file")
	f.StringVar(&genFlags.nvstore, "nvstore", "eeparam-go/nvstore", "import path of the nvstore package")
	rootCmd.AddCommand(genCmd)
}
