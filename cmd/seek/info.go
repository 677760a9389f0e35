package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/seek/internal/db"
	"github.com/michaelscutari/seek/internal/snapshot"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display search metadata",
	Long:  `Print metadata about a search snapshot including timestamps and statistics.`,
	RunE:  runInfo,
}

var (
	infoDB   string
	infoList bool
)

func init() {
	infoCmd.Flags().StringVarP(&infoDB, "db", "d", "./data/latest.db", "Path to database file")
	infoCmd.Flags().BoolVarP(&infoList, "list", "l", false, "List the snapshots next to the database instead")
}

func runInfo(cmd *cobra.Command, args []string) error {
	if infoList {
		return listSnapshots()
	}

	database, err := snapshot.Open(infoDB)
	if err != nil {
		return err
	}
	defer snapshot.Close(database)

	meta, err := db.GetSearchMeta(database)
	if err != nil {
		return fmt.Errorf("failed to read search metadata: %w", err)
	}

	fmt.Printf("Search Information\n")
	fmt.Printf("==================\n\n")
	fmt.Printf("Search ID:    %s\n", meta.ID)
	fmt.Printf("Root Path:    %s\n", meta.RootPath)
	fmt.Printf("Keywords:     %s\n", meta.Keywords)
	fmt.Printf("State:        %s\n", meta.State)
	fmt.Printf("Start Time:   %s\n", meta.StartTime.Format(time.RFC3339))
	if !meta.EndTime.IsZero() {
		fmt.Printf("End Time:     %s\n", meta.EndTime.Format(time.RFC3339))
		fmt.Printf("Duration:     %s\n", meta.EndTime.Sub(meta.StartTime).Round(time.Millisecond))
	}
	fmt.Printf("\nStatistics\n")
	fmt.Printf("----------\n")
	fmt.Printf("Results:       %s\n", humanize.Comma(meta.ResultCount))
	fmt.Printf("Files Checked: %s\n", humanize.Comma(meta.FileCount))
	fmt.Printf("Directories:   %s\n", humanize.Comma(meta.DirCount))
	fmt.Printf("Content Read:  %s\n", humanize.Bytes(uint64(meta.BytesRead)))
	if meta.SkipCount > 0 {
		fmt.Printf("Skipped:       %s\n", humanize.Comma(meta.SkipCount))
	}
	if meta.ErrorCount > 0 {
		fmt.Printf("Errors:        %s\n", humanize.Comma(meta.ErrorCount))
	}

	return nil
}

func listSnapshots() error {
	mgr := snapshot.NewManager(filepath.Dir(infoDB), 0)
	paths, err := mgr.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	latest, _ := mgr.GetLatest()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "\tSTARTED\tSTATE\tRESULTS\tKEYWORDS\tFILE\n")
	for _, p := range paths {
		marker := ""
		if p == latest {
			marker = "*"
		}
		database, err := snapshot.Open(p)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", marker, filepath.Base(p))
			continue
		}
		meta, err := db.GetSearchMeta(database)
		snapshot.Close(database)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", marker, filepath.Base(p))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker,
			meta.StartTime.Format("2006-01-02 15:04"),
			meta.State,
			humanize.Comma(meta.ResultCount),
			meta.Keywords,
			filepath.Base(p),
		)
	}
	return nil
}
