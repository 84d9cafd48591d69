// Package cliview holds the terminal styling shared by cmd/titan's
// subcommands: plan-run summaries, health tables, and watch-mode
// status lines.
package cliview

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#8BC34A")
	colorWarn    = lipgloss.Color("#FFC107")
	colorDanger  = lipgloss.Color("#e53935")
	colorMuted   = lipgloss.Color("#6b7280")
	colorBorder  = lipgloss.Color("#3a4a63")
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	Muted = lipgloss.NewStyle().Foreground(colorMuted)
	OK    = lipgloss.NewStyle().Foreground(colorAccent)
	Warn  = lipgloss.NewStyle().Foreground(colorWarn)
	Error = lipgloss.NewStyle().Bold(true).Foreground(colorDanger)

	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1)
)

// StatusGlyph returns a colored one-word status label for a service's
// supervisor health (dead / degraded / running / stopped).
func StatusGlyph(running, dead bool, failures int) string {
	switch {
	case dead:
		return Error.Render("dead")
	case failures > 0:
		return Warn.Render("degraded")
	case running:
		return OK.Render("running")
	default:
		return Muted.Render("stopped")
	}
}
