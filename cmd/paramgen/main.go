// Command paramgen turns a parameter layout description into Go constants
// and an nvstore.Table, checking at generation time and again at compile
// time that the layout fits the medium.
//
//	paramgen gen -i layout.yaml -o layout_gen.go -p params
//	paramgen check -i layout.yaml
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paramgen",
	Short: "Generate wear-levelled parameter layouts for nvstore.",
	Long: `paramgen reads a YAML list of parameters (name, type, slot count) and the ` +
		`medium geometry, packs one circular slot buffer per parameter and emits ` +
		`the address constants and nvstore.Table for it.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
