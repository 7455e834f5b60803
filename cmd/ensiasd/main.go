// Package main provides the ensiasd CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ensiasd",
		Short: "Grading, deliberation and timetabling for engineering programs",
		Long: `ensiasd computes module scores from mark sheets, aggregates semester and
year results, runs jury deliberations, and checks, generates and
materializes weekly timetables.`,
		Version: version,
	}
	rootCmd.PersistentFlags().String("root", "", "Institution directory holding .ensiasd/config.yaml (default: current directory)")

	rootCmd.AddCommand(
		newRubricCmd(),
		newScoreCmd(),
		newAggregateCmd(),
		newDeliberateCmd(),
		newTimetableCmd(),
		newArchiveCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
