package main

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme colors (Catppuccin Mocha inspired).
var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}
	colorError   = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"}
)

// cliStyles are the status styles used for command output.
type cliStyles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Version lipgloss.Style
}

var styles = cliStyles{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
	Success: lipgloss.NewStyle().Foreground(colorSuccess),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(colorError),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	Version: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
}

const (
	markOK   = "✓"
	markWarn = "!"
	markFail = "✗"
)

func okLine(msg string) string {
	return styles.Success.Render(markOK) + " " + msg
}

func warnLine(msg string) string {
	return styles.Warning.Render(markWarn) + " " + msg
}

func failLine(msg string) string {
	return styles.Error.Render(markFail) + " " + msg
}
