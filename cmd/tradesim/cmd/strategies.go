package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/strategy"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List registered strategies",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range strategy.Names() {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}
