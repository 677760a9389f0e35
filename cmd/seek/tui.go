package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelscutari/seek/internal/snapshot"
	"github.com/michaelscutari/seek/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse a search snapshot interactively",
	Long:  `Open an interactive TUI to sort, filter and inspect stored search results.`,
	RunE:  runTUI,
}

var tuiDB string

func init() {
	tuiCmd.Flags().StringVarP(&tuiDB, "db", "d", "./data/latest.db", "Path to database file")
}

func runTUI(cmd *cobra.Command, args []string) error {
	database, err := snapshot.Open(tuiDB)
	if err != nil {
		return err
	}
	defer snapshot.Close(database)

	model := tui.NewModel(database)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
