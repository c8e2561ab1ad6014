package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labimport/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "labimport",
		Short: "Import laboratory results from remote upload directories",
		Long: `labimport fetches HL7 and CSV result files that laboratories upload,
stores their results and observations, and removes imported files from the
upload directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.MigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
