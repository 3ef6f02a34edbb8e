package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "nlpmodel",
	Short: "User directory and schema metadata service for natural-language query building",
	Long: `nlpmodel keeps a directory of user descriptors and compiles database
schema metadata (tables, columns, default sorts) that natural-language
query builders consume over HTTP or MCP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultNoColor := os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stderr.Fd()))
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", defaultNoColor, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		fmt.Fprintln(os.Stderr, "Run 'nlpmodel --help' for usage.")
		os.Exit(1)
	}
}
