package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rankmatrix",
		Short: "Aggregate keyword and app-store rank exports into change-annotated matrices",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(importCmd())
	root.AddCommand(matrixCmd())
	root.AddCommand(pruneCmd())
	root.AddCommand(serveCmd())

	return root
}

func importCmd() *cobra.Command {
	var (
		subject   string
		date      string
		delimiter string
	)

	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Ingest delimited rank exports for a subject",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args, subject, date, delimiter)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "subject (app or brand) the files belong to")
	cmd.Flags().StringVar(&date, "date", "", "observation date for files without a date column (YYYY-MM-DD, default: today)")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "force field separator: tab or comma (default: auto-detect)")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func matrixCmd() *cobra.Command {
	var (
		country    string
		date       string
		subjects   []string
		filterName string
		sortName   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Show the rank matrix for a date and country",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(country, date, subjects, filterName, sortName, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&country, "country", "", "country code (default: from config)")
	cmd.Flags().StringVar(&date, "date", "", "matrix date (YYYY-MM-DD, default: today)")
	cmd.Flags().StringSliceVar(&subjects, "subject", nil, "subject columns to include (default: all with data)")
	cmd.Flags().StringVar(&filterName, "filter", "all", "row filter: all, changed, drops, gains")
	cmd.Flags().StringVar(&sortName, "sort", "alphabetical", "row order: alphabetical, drops, gains, rank")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func pruneCmd() *cobra.Command {
	var keepDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete observations older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(keepDays)
		},
	}

	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "history window in days (default: from config)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server with retention and alert sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
