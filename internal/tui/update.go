package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.meta = msg.meta
		m.hotspot = msg.hotspot
		m.results = msg.results
		m.allSkipped = msg.skipped
		m.skipped = msg.skipped
		m.cursor = 0
		return m, nil

	case resultsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		// drop replies for a filter the user has already changed
		if msg.filter != m.filter {
			return m, nil
		}
		m.results = msg.results
		if m.cursor >= len(m.results) {
			m.cursor = 0
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterActive {
		switch msg.String() {
		case "enter":
			m.filterActive = false
			return m, nil

		case "esc":
			m.filterActive = false
			m.filter = ""
			return m, m.refilter()

		case "backspace":
			if len(m.filter) > 0 {
				runes := []rune(m.filter)
				m.filter = string(runes[:len(runes)-1])
				return m, m.refilter()
			}
			return m, nil

		case "ctrl+c":
			return m, tea.Quit
		}

		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			m.filter += msg.String()
			return m, m.refilter()
		}

		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < m.rows()-1 {
			m.cursor++
		}
		return m, nil

	case "s", "n", "m", "p":
		if m.showSkipped {
			return m, nil
		}
		m.sort = map[string]SortColumn{"s": SortBySize, "n": SortByName, "m": SortByModified, "p": SortByPath}[msg.String()]
		m.cursor = 0
		return m, m.loadResults()

	case "x":
		m.showSkipped = !m.showSkipped
		return m, m.refilter()

	case "/":
		m.filterActive = true
		return m, nil

	case "home", "g":
		m.cursor = 0
		return m, nil

	case "end", "G":
		if m.rows() > 0 {
			m.cursor = m.rows() - 1
		}
		return m, nil

	case "pgup":
		m.cursor -= 10
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case "pgdown":
		m.cursor += 10
		if m.cursor >= m.rows() {
			m.cursor = m.rows() - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil
	}

	return m, nil
}
