package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/dtesn/core"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the runtime library version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("dtesn version " + core.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
