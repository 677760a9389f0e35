package tui

import (
	"database/sql"
	"strings"

	"github.com/michaelscutari/seek/internal/db"
	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/rollup"

	tea "github.com/charmbracelet/bubbletea"
)

// loadLimit caps the rows pulled from a snapshot per query.
const loadLimit = 5000

// SortColumn represents the current sort field.
type SortColumn int

const (
	SortByName SortColumn = iota
	SortBySize
	SortByModified
	SortByPath
)

func (s SortColumn) String() string {
	switch s {
	case SortBySize:
		return "size"
	case SortByModified:
		return "modified"
	case SortByPath:
		return "path"
	default:
		return "name"
	}
}

// Model holds the TUI state.
type Model struct {
	db           *sql.DB
	meta         *entry.SearchMeta
	hotspot      *rollup.DirRollup
	results      []entry.MatchResult
	allSkipped   []entry.SkippedFile
	skipped      []entry.SkippedFile
	showSkipped  bool
	cursor       int
	sort         SortColumn
	width        int
	height       int
	filter       string
	filterActive bool
	err          error
}

// NewModel creates a new TUI model over an open snapshot.
func NewModel(database *sql.DB) *Model {
	return &Model{
		db:   database,
		sort: SortByName,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.loadInitialData
}

type dataLoadedMsg struct {
	meta    *entry.SearchMeta
	hotspot *rollup.DirRollup
	results []entry.MatchResult
	skipped []entry.SkippedFile
	err     error
}

func (m *Model) loadInitialData() tea.Msg {
	meta, err := db.GetSearchMeta(m.db)
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	results, err := db.LoadResults(m.db, m.sort.String(), "", loadLimit)
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	skipped, err := db.LoadSkipped(m.db, loadLimit)
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	msg := dataLoadedMsg{
		meta:    meta,
		results: results,
		skipped: skipped,
	}
	// older snapshots have no rollups
	if top, err := rollup.Top(m.db, 1); err == nil && len(top) > 0 {
		msg.hotspot = &top[0]
	}
	return msg
}

type resultsLoadedMsg struct {
	filter  string
	results []entry.MatchResult
	err     error
}

func (m *Model) loadResults() tea.Cmd {
	sortBy, filter := m.sort.String(), m.filter
	return func() tea.Msg {
		results, err := db.LoadResults(m.db, sortBy, filter, loadLimit)
		return resultsLoadedMsg{filter: filter, results: results, err: err}
	}
}

func (m *Model) helpLine() string {
	if m.filterActive {
		return "Type to filter | Enter: apply | Esc: clear | Ctrl+C: quit"
	}
	if m.showSkipped {
		return "↑/↓ move | x: results | /: filter | q: quit"
	}
	return "↑/↓ move | s/n/m/p: sort | /: filter | x: skipped files | q: quit"
}

// rows is the length of the active list.
func (m *Model) rows() int {
	if m.showSkipped {
		return len(m.skipped)
	}
	return len(m.results)
}

// refilter re-applies the filter to the active list. Results are filtered
// by the database; the skipped-file log is filtered here.
func (m *Model) refilter() tea.Cmd {
	m.cursor = 0
	if !m.showSkipped {
		return m.loadResults()
	}
	if m.filter == "" {
		m.skipped = m.allSkipped
		return nil
	}
	filtered := make([]entry.SkippedFile, 0, len(m.allSkipped))
	needle := strings.ToLower(m.filter)
	for _, s := range m.allSkipped {
		if strings.Contains(strings.ToLower(s.Path), needle) {
			filtered = append(filtered, s)
		}
	}
	m.skipped = filtered
	return nil
}
