package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "sdr",
	Short:         "Lead qualification, scoring and outreach drafting",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(leadsCmd, criteriaCmd, messageCmd, searchCmd, evalCmd, configCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
