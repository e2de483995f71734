package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette - keeping it minimal and accessible.
var (
	colorPrimary = lipgloss.Color("39")  // Blue
	colorSuccess = lipgloss.Color("34")  // Green
	colorWarning = lipgloss.Color("214") // Orange
	colorMuted   = lipgloss.Color("240") // Dark gray
)

// palette holds the styles used for tabular output. The zero-colour palette
// still pads cells, so piped output stays aligned.
type palette struct {
	title lipgloss.Style
	head  lipgloss.Style
	yes   lipgloss.Style
	no    lipgloss.Style
	warn  lipgloss.Style
}

// useColor reports whether w is a terminal and NO_COLOR is unset.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func newPalette(w io.Writer) palette {
	plain := lipgloss.NewStyle()
	if !useColor(w) {
		return palette{title: plain, head: plain, yes: plain, no: plain, warn: plain}
	}
	return palette{
		title: lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		head:  lipgloss.NewStyle().Bold(true),
		yes:   lipgloss.NewStyle().Foreground(colorSuccess),
		no:    lipgloss.NewStyle().Foreground(colorMuted),
		warn:  lipgloss.NewStyle().Foreground(colorWarning),
	}
}

// renderTable lays out rows in left-aligned columns two spaces apart.
// The first row is the header.
func (p palette) renderTable(rows [][]string, cellStyle func(row, col int) lipgloss.Style) string {
	if len(rows) == 0 {
		return ""
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for r, row := range rows {
		cells := make([]string, len(row))
		for c, cell := range row {
			style := p.head
			if r > 0 && cellStyle != nil {
				style = cellStyle(r, c)
			}
			width := widths[c]
			if c < len(row)-1 {
				width += 2
			}
			cells[c] = style.Width(width).Render(cell)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		b.WriteString("\n")
	}
	return b.String()
}
