package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:           "meisai",
	Short:         "Download card statements from e-NAVI and send a payment digest",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

func newLogger() *log.Logger {
	opts := log.Options{
		ReportTimestamp: true,
		Prefix:          "meisai",
	}
	if debug {
		opts.Level = log.DebugLevel
		opts.ReportCaller = true
	}
	return log.NewWithOptions(os.Stderr, opts)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is meisai.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug logging")
	rootCmd.PersistentFlags().String("storage", "", "Export directory (default ./storage)")
	rootCmd.PersistentFlags().String("encoding", "", "Export encoding: utf-8 or shift_jis")
	rootCmd.PersistentFlags().String("timezone", "", "Time zone for rows without a payment month (default Asia/Tokyo)")
	rootCmd.PersistentFlags().String("history", "", "Run history database (empty disables)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
