package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/datahost/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "datahost",
	Short: "datahost - transactional multi-collection storage engine",
	Long: `datahost hosts B-Tree indexes and secondary-indexed tables over a
transactional block file, with a single bbolt-backed catalog tracking
every collection's schema and root block ids.

This binary is the operator-facing maintenance surface: the engine
itself is embedded as a library.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("datahost version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("data-dir", "./data", "Host directory root")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
