package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

const banner = `
  ___       _                    ____                _
 / _ \  ___| |_ __ _ _ __   ___ / ___|  ___  ___ ___(_) ___  _ __  ___
| | | |/ __| __/ _' | '_ \ / _ \\___ \ / _ \/ __/ __| |/ _ \| '_ \/ __|
| |_| | (__| || (_| | | | |  __/ ___) |  __/\__ \__ \ | (_) | | | \__ \
 \___/ \___|\__\__,_|_| |_|\___||____/ \___||___/___/_|\___/|_| |_|___/

  Octane Sessions v%s - Batch session search over application server logs
`

var (
	info  = color.New(color.FgCyan)
	warn  = color.New(color.FgRed, color.Bold)
	ok    = color.New(color.FgGreen)
	quiet bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "octane",
		Short: "Octane Sessions - batch session search over log directories",
		Long: `Octane scans every file of a log directory for a search term, extracts
session records from WebSphere style lines and writes one ordered session
report (XML properties, plain properties or CSV).

Commands:
  scan      Scan a directory and write the session report
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default: ./octane.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress banner and summary")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console, json")

	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		warn.Fprintf(os.Stderr, "[!] Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "octane v%s\n", version)
		},
	}
}
