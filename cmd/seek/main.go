package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelscutari/seek/internal/logging"
)

var version = "0.1.0"

var (
	logLevel  string
	logFile   string
	logCloser io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "seek",
	Short: "A prioritised concurrent file search engine",
	Long: `seek searches a directory tree for file names, folder names and file
contents matching keywords. Likely user locations are expanded first, and
results can be stored in SQLite snapshots for later browsing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := logging.Init(logLevel, logFile)
		if err != nil {
			return err
		}
		logCloser = c
		return nil
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", os.Getenv("SEEK_LOGFILE"), "Append logs to this file instead of stderr")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
}
