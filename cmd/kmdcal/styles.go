package main

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("12")  // bright blue
	colorSecondary = lipgloss.Color("10")  // bright green
	colorDim       = lipgloss.Color("240") // gray
	colorHighlight = lipgloss.Color("11")  // bright yellow
	colorError     = lipgloss.Color("9")   // bright red

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleHeader = lipgloss.NewStyle().
			Foreground(colorSecondary)

	styleInferred = lipgloss.NewStyle().
			Foreground(colorHighlight)

	styleDim = lipgloss.NewStyle().
			Foreground(colorDim)

	styleError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	styleWeekday = lipgloss.NewStyle().
			Width(5).
			Bold(true)
)
