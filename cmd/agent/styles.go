package main

import "github.com/charmbracelet/lipgloss"

var (
	accent    = lipgloss.AdaptiveColor{Light: "#2D5BFF", Dark: "#7AA2F7"}
	subtle    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	titleSt   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	youSt     = lipgloss.NewStyle().Bold(true).Foreground(accent)
	agentSt   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f59e0b"))
	statusSt  = lipgloss.NewStyle().Italic(true).Foreground(subtle)
	errorSt   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444"))
	warningSt = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
)
