// Command mpfdstream is a CLI harness around the mpfdstream streaming
// multipart/form-data parser: feed it a body file (or stdin) plus a JSON
// config of targets to register, and it reports per-target byte counts.
//
// Grounded on cmd/guerrillad's root.go/serve.go: a cobra root command
// carrying persistent flags, with the actual work done by a subcommand.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mpfdstream",
	Short: "streaming multipart/form-data parser",
	Long: `mpfdstream parses multipart/form-data bodies as an arbitrary stream of
byte chunks, dispatching each part's payload to a configured target
without ever buffering the whole body.`,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"print out more debug information")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
