package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/seek/internal/db"
	"github.com/michaelscutari/seek/internal/rollup"
	"github.com/michaelscutari/seek/internal/snapshot"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a snapshot non-interactively",
	Long:  `Print stored results, skipped files or errors from a search snapshot for scripting.`,
	RunE:  runQuery,
}

var (
	queryDB      string
	queryFilter  string
	querySort    string
	queryLimit   int
	querySkipped bool
	queryErrors  bool
	queryByDir   bool
)

func init() {
	queryCmd.Flags().StringVarP(&queryDB, "db", "d", "./data/latest.db", "Path to database file")
	queryCmd.Flags().StringVarP(&queryFilter, "filter", "f", "", "Only rows whose name or path contains this text")
	queryCmd.Flags().StringVarP(&querySort, "sort", "s", "name", "Sort by: name, size, modified, path")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 20, "Maximum number of rows (0 = all)")
	queryCmd.Flags().BoolVar(&querySkipped, "skipped", false, "List skipped files instead of results")
	queryCmd.Flags().BoolVar(&queryErrors, "errors", false, "List sampled errors instead of results")
	queryCmd.Flags().BoolVar(&queryByDir, "by-dir", false, "List the directories with the most matches")
}

func runQuery(cmd *cobra.Command, args []string) error {
	switch querySort {
	case "name", "size", "modified", "mtime", "path":
	default:
		return fmt.Errorf("invalid sort %q (expected name|size|modified|path)", querySort)
	}

	database, err := snapshot.Open(queryDB)
	if err != nil {
		return err
	}
	defer snapshot.Close(database)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch {
	case querySkipped:
		skipped, err := db.LoadSkipped(database, queryLimit)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		fmt.Fprintf(w, "REASON\tPATH\n")
		for _, s := range skipped {
			fmt.Fprintf(w, "%s\t%s\n", s.Reason, s.Path)
		}

	case queryErrors:
		errs, err := db.LoadErrors(database, queryLimit)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		fmt.Fprintf(w, "PATH\tMESSAGE\n")
		for _, e := range errs {
			fmt.Fprintf(w, "%s\t%s\n", e.Path, e.Message)
		}

	case queryByDir:
		dirs, err := rollup.Top(database, queryLimit)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		fmt.Fprintf(w, "MATCHES\tCONTENT\tSIZE\tPATH\n")
		for _, d := range dirs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				humanize.Comma(d.Matches),
				humanize.Comma(d.ContentMatches),
				humanize.Bytes(uint64(d.TotalSize)),
				d.Path,
			)
		}

	default:
		results, err := db.LoadResults(database, querySort, queryFilter, queryLimit)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		fmt.Fprintf(w, "TYPE\tSIZE\tMODIFIED\tMATCH\tKEYWORD\tPATH\n")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.EntryType,
				r.SizeFormatted,
				r.ModTime.Format("2006-01-02 15:04"),
				r.Source,
				r.Keyword,
				r.FullPath,
			)
		}
	}

	return nil
}
