// Package main provides the kpbuilder offline CLI. It renders, rasterizes
// and inspects proposal documents stored as JSON files, without a database.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const appName = "kpbuilder"

var Version = "dev"

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Commercial proposal toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `kpbuilder works on proposal JSON documents exported from the editor.

It can render the proposal page, print it to PDF, compute totals and
extract or apply proposal templates.`,
	}

	cmd.AddCommand(
		renderCmd(),
		pdfCmd(),
		totalsCmd(),
		templateCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}
