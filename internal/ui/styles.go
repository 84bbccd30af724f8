package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorError     = lipgloss.Color("196") // Red
	colorPending   = lipgloss.Color("214") // Orange
)

// Header style for the top title line.
var Header = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// SectionTitle style for panel headings.
var SectionTitle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// SourceOK, SourceFailed and SourcePending mark a source's last outcome.
var (
	SourceOK      = lipgloss.NewStyle().Foreground(colorSuccess)
	SourceFailed  = lipgloss.NewStyle().Foreground(colorError)
	SourcePending = lipgloss.NewStyle().Foreground(colorPending)
)

// SourceName style for source labels in the status panel.
var SourceName = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// MetaText style for counts and secondary details.
var MetaText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// EventsPanel style for the event log panel.
var EventsPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(0, 1)

// EventsHeader style for headings inside the event panel.
var EventsHeader = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)

// EventWarn and EventError color non-info event lines.
var (
	EventWarn  = lipgloss.NewStyle().Foreground(colorPending)
	EventError = lipgloss.NewStyle().Foreground(colorError)
)
