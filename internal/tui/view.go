package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/michaelscutari/seek/internal/entry"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	}

	if m.meta == nil {
		return "Loading..."
	}

	var b strings.Builder
	headerLines := 0

	writeLine := func(line string) {
		b.WriteString(line)
		b.WriteString("\n")
		headerLines++
	}

	// Header
	writeLine(titleStyle.Render("seek - Search Results"))

	searchInfo := fmt.Sprintf("Search: %s | %q | %s | Files: %s | Dirs: %s | Read: %s",
		m.meta.StartTime.Format("2006-01-02 15:04"),
		m.meta.Keywords,
		m.meta.State,
		FormatCount(m.meta.FileCount),
		FormatCount(m.meta.DirCount),
		FormatSize(m.meta.BytesRead),
	)
	writeLine(statsStyle.Render(searchInfo))

	rootLabel := fmt.Sprintf("Root: %s", truncateMiddle(m.meta.RootPath, max(10, m.width-6)))
	if m.hotspot != nil {
		rootLabel += fmt.Sprintf(" | Most matches: %s (%s)",
			truncateMiddle(m.hotspot.Path, max(10, m.width/3)), FormatCount(m.hotspot.Matches))
	}
	writeLine(rootStyle.Render(rootLabel))

	// Status line
	var status string
	if m.showSkipped {
		status = fmt.Sprintf("Skipped: %s of %s", FormatCount(int64(len(m.skipped))), FormatCount(m.meta.SkipCount))
	} else {
		status = fmt.Sprintf("Results: %s of %s", FormatCount(int64(len(m.results))), FormatCount(m.meta.ResultCount))
	}
	if m.filter != "" {
		status += fmt.Sprintf(" | Filter: %q", m.filter)
	}
	if !m.showSkipped && len(m.results) > 0 && m.cursor < len(m.results) {
		sel := m.results[m.cursor]
		status += fmt.Sprintf(" | Sel: %s (%s by %s)",
			truncateMiddle(sel.FullPath, max(10, m.width/2)), sel.Keyword, sel.Source)
	}
	writeLine(statusStyle.Render(status))

	// Filter input
	if m.filterActive {
		filterLine := fmt.Sprintf("Filter: %s_", m.filter)
		writeLine(filterStyle.Render(filterLine))
	} else if m.filter != "" {
		filterLine := fmt.Sprintf("Filter: %s", m.filter)
		writeLine(filterStyle.Render(filterLine))
	}

	// Calculate visible rows
	footerLines := 2
	visibleRows := m.height - headerLines - footerLines - 2
	if visibleRows < 5 {
		visibleRows = 5
	}

	// Determine scroll offset
	startIdx := 0
	if m.cursor >= visibleRows {
		startIdx = m.cursor - visibleRows + 1
	}
	endIdx := min(m.rows(), startIdx+visibleRows)

	if m.showSkipped {
		m.renderSkipped(&b, startIdx, endIdx)
	} else {
		m.renderResults(&b, startIdx, endIdx)
	}

	// Pad if needed
	displayedRows := max(0, endIdx-startIdx)
	for i := displayedRows; i < visibleRows; i++ {
		b.WriteString("\n")
	}

	// Footer
	b.WriteString("\n")
	help := m.helpLine()
	if m.rows() > 0 {
		help = fmt.Sprintf("%s [%d/%d]", help, m.cursor+1, m.rows())
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

type columnWidths struct {
	size     int
	modified int
	source   int
}

const (
	colGap        = 2
	nameGapWidth  = 2
	minNameWidth  = 10
	modifiedWidth = 16 // "2006-01-02 15:04"
	barBlockWidth = 10                                        // number of block characters
	barPctWidth   = 4                                         // " 78%" or "100%"
	barGapWidth   = 1                                         // space between blocks and pct
	barColWidth   = barBlockWidth + barGapWidth + barPctWidth // 15
)

func (m *Model) renderResults(b *strings.Builder, startIdx, endIdx int) {
	sizeLabel := headerLabel("SIZE", m.sort == SortBySize, "v")
	modifiedLabel := headerLabel("MODIFIED", m.sort == SortByModified, "v")
	nameLabel := headerLabel("NAME", m.sort == SortByName, "^")
	if m.sort == SortByPath {
		nameLabel = "NAME (by path)^"
	}

	widths := calcColumnWidths(m.results, startIdx, endIdx, sizeLabel, modifiedLabel, "MATCH")
	nameWidth := calcNameWidth(m.width, widths)
	gap := strings.Repeat(" ", colGap)
	nameGap := strings.Repeat(" ", nameGapWidth)

	nameLabel = truncateRight(nameLabel, nameWidth)
	namePad := max(0, nameWidth-len(nameLabel))
	header := fmt.Sprintf("%*s%s%-*s%s%-*s%s%s%s%s%*s",
		widths.size, sizeLabel,
		gap,
		widths.modified, modifiedLabel,
		gap,
		widths.source, "MATCH",
		nameGap,
		nameLabel,
		strings.Repeat(" ", namePad),
		gap,
		barColWidth, "SIZE%",
	)
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	largest := largestSize(m.results)
	for i := startIdx; i < endIdx; i++ {
		line := m.formatResult(m.results[i], i == m.cursor, widths, nameWidth, largest)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func (m *Model) renderSkipped(b *strings.Builder, startIdx, endIdx int) {
	reasonWidth := len("REASON")
	for i := startIdx; i < endIdx; i++ {
		reasonWidth = max(reasonWidth, len(m.skipped[i].Reason))
	}
	pathWidth := max(minNameWidth, m.width-reasonWidth-colGap)
	gap := strings.Repeat(" ", colGap)

	header := fmt.Sprintf("%-*s%s%s", reasonWidth, "REASON", gap, "PATH")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	for i := startIdx; i < endIdx; i++ {
		s := m.skipped[i]
		path := truncateMiddle(s.Path, pathWidth)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(fmt.Sprintf("%-*s%s%s", reasonWidth, s.Reason, gap, path)))
		} else {
			b.WriteString(reasonStyle.Render(fmt.Sprintf("%-*s", reasonWidth, s.Reason)) + gap + fileStyle.Render(path))
		}
		b.WriteString("\n")
	}
}

func calcColumnWidths(results []entry.MatchResult, startIdx, endIdx int, sizeLabel, modifiedLabel, sourceLabel string) columnWidths {
	w := columnWidths{
		size:     len(sizeLabel),
		modified: max(len(modifiedLabel), modifiedWidth),
		source:   max(len(sourceLabel), len("content")),
	}

	for i := startIdx; i < endIdx; i++ {
		if n := len(results[i].SizeFormatted); n > w.size {
			w.size = n
		}
	}

	return w
}

func calcNameWidth(totalWidth int, w columnWidths) int {
	// columns + gaps between 3 data cols (2) + gap before name + gap before bar + bar
	used := w.size + w.modified + w.source + (colGap * 3) + nameGapWidth + barColWidth
	nameWidth := totalWidth - used
	if nameWidth < minNameWidth {
		nameWidth = minNameWidth
	}
	return nameWidth
}

func truncateRight(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func (m *Model) formatResult(r entry.MatchResult, selected bool, widths columnWidths, nameWidth int, largest int64) string {
	modified := "-"
	if !r.ModTime.IsZero() {
		modified = r.ModTime.Format("2006-01-02 15:04")
	}

	var rawName string
	if r.EntryType == entry.KindDir {
		rawName = r.Name + "/"
	} else {
		rawName = r.Name
	}

	rawName = truncateRight(rawName, nameWidth)
	var styledName string
	switch {
	case r.EntryType == entry.KindDir:
		styledName = dirStyle.Render(rawName)
	case r.Source == entry.MatchedContent:
		styledName = contentStyle.Render(rawName)
	default:
		styledName = fileStyle.Render(rawName)
	}

	// Pad name to fixed width so bar column aligns
	pad := max(0, nameWidth-len(rawName))
	paddedName := styledName + strings.Repeat(" ", pad)

	bar := formatBar(r.Size, largest)

	gap := strings.Repeat(" ", colGap)
	nameGap := strings.Repeat(" ", nameGapWidth)
	line := fmt.Sprintf("%*s%s%-*s%s%-*s%s%s%s%s",
		widths.size, r.SizeFormatted,
		gap,
		widths.modified, modified,
		gap,
		widths.source, r.Source.String(),
		nameGap,
		paddedName,
		gap,
		bar,
	)

	if selected {
		return selectedStyle.Render(line)
	}
	return line
}

func largestSize(results []entry.MatchResult) int64 {
	var largest int64
	for _, r := range results {
		largest = max(largest, r.Size)
	}
	return largest
}

func formatBar(entryVal, total int64) string {
	if total <= 0 || entryVal <= 0 {
		empty := strings.Repeat("░", barBlockWidth)
		return barEmptyStyle.Render(empty) + fmt.Sprintf("  %3d%%", 0)
	}

	pct := float64(entryVal) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}

	filled := int(math.Round(pct / 100 * float64(barBlockWidth)))
	if filled < 1 && entryVal > 0 {
		filled = 1
	}
	if filled > barBlockWidth {
		filled = barBlockWidth
	}

	filledStr := barFilledStyle.Render(strings.Repeat("█", filled))
	emptyStr := barEmptyStyle.Render(strings.Repeat("░", barBlockWidth-filled))
	return filledStr + emptyStr + fmt.Sprintf("  %3d%%", int(math.Round(pct)))
}

func headerLabel(label string, active bool, dir string) string {
	if active {
		return label + dir
	}
	return label
}

func truncateMiddle(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	head := (maxLen - 3) / 2
	tail := maxLen - 3 - head
	return s[:head] + "..." + s[len(s)-tail:]
}
