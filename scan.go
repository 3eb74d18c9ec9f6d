package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chinab/octane-crawler/config"
	"github.com/chinab/octane-crawler/logging"
	"github.com/chinab/octane-crawler/reporter"
	"github.com/chinab/octane-crawler/searcher"
)

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Scan a log directory and write the session report",
		Long: `Scan every file directly inside dir (subdirectories are not descended
into), count the lines containing the search term and aggregate session
lines into one report written once at the end of the run.

Examples:
  octane scan /opt/IBM/WebSphere/logs/server1 -t LOGIN
  octane scan ./logs -t LOGIN -f plain -o sessions.properties
  octane scan ./logs -t timeout -i --include "SystemOut*.log" --no-output`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScan,
	}

	flags := cmd.Flags()
	flags.String("dir", "", "directory to scan (or first argument)")
	flags.StringP("term", "t", "", "search term (plain substring)")
	flags.BoolP("ignore-case", "i", false, "match the search term case-insensitively")
	flags.String("include", "", `only scan files whose name matches this glob (default "*")`)
	flags.StringP("out", "o", "", `report file (default "session-output.log")`)
	flags.StringP("format", "f", "", "report format: xml, plain, csv (default xml)")
	flags.Bool("no-output", false, "do not write a report file")
	flags.Bool("immediate", false, "echo every session line into the report as a comment")
	flags.String("pattern", "", "session regex (named groups: container, thread, timestamp, level, event)")
	flags.StringSlice("key-fields", nil, "fields forming the session key (default container,thread,timestamp)")
	flags.String("stats-file", "", "write run statistics as YAML to this file")

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := cmd.Flags().Set("dir", args[0]); err != nil {
			return err
		}
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.SetGlobal(log)

	if !quiet {
		fmt.Fprintf(os.Stderr, banner, version)
	}

	s, err := searcher.New(cfg, log, searcher.WithAfterRun(reporter.LogMemory(log)))
	if err != nil {
		return err
	}

	info.Fprintf(os.Stderr, "[*] Scanning %s for %q\n", cfg.Search.Dir, cfg.Search.Term)

	if err := s.Search(); err != nil {
		return err
	}

	stats := s.Stats()
	if !stats.Completed {
		warn.Fprintln(os.Stderr, "[!] Nothing scanned, check the search term and directory.")
		return nil
	}

	if !quiet {
		if err := reporter.Summary(stats, s.Database(), os.Stderr); err != nil {
			return err
		}
	}

	if cfg.Stats.File != "" {
		if err := reporter.WriteStatsFile(stats, cfg.Stats.File); err != nil {
			return err
		}
		ok.Fprintf(os.Stderr, "[+] Statistics written to %s\n", cfg.Stats.File)
	}

	if stats.Output != "" {
		ok.Fprintf(os.Stderr, "[+] Report written to %s\n", stats.Output)
	}
	ok.Fprintf(os.Stderr, "[+] Found %q %d times, %d sessions\n", stats.Term, stats.TotalFound, stats.Sessions)

	return nil
}
