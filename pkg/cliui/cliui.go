// Package cliui provides the shared lipgloss styles and small rendering
// helpers for azrelay CLI output.
package cliui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	HeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
)

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// Row is one key/value line of a Table.
type Row struct {
	Key   string
	Value string
}

// Table writes rows with keys padded to a common width. Empty values render
// as a dimmed "<not set>".
func Table(w io.Writer, rows []Row) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r.Key))
	}

	for _, r := range rows {
		pad := strings.Repeat(" ", width-len(r.Key))
		value := ValueStyle.Render(r.Value)
		if r.Value == "" {
			value = DimStyle.Render("<not set>")
		}
		fmt.Fprintf(w, "  %s%s  %s\n", KeyStyle.Render(r.Key), pad, value)
	}
}

// ConfigSource writes the config file banner shown above config output.
func ConfigSource(w io.Writer, target string, exists bool) {
	if exists {
		fmt.Fprintf(w, "\n  %s %s\n\n", KeyStyle.Render("Config file:"), DimStyle.Render(target))
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", DimStyle.Render("No config file found. Using defaults."))
}
