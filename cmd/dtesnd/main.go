// dtesnd hosts a DTESN runtime behind the HTTP provider protocol, so
// clients in other processes can reach it through httpprovider.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dtesnd",
	Short: "dtesnd hosts a DTESN runtime behind the HTTP provider protocol.",
	Long: `dtesnd hosts a DTESN runtime behind the HTTP provider protocol. ` +
		`Remote clients built with httpprovider connect to /api/op, while the ` +
		`daemon records every call into SQLite and runs a monitoring server ` +
		`for the hosting process.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
