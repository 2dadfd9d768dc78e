package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Terminal palette. Deployment states map onto the status colors: scheduled
// and in-progress deployments use ColorPending, finished ones ColorOK or
// ColorFailed.
var (
	ColorAccent  = lipgloss.Color("99")  // headings and the zonke brand
	ColorLink    = lipgloss.Color("39")  // preview URLs and section labels
	ColorOK      = lipgloss.Color("42")
	ColorPending = lipgloss.Color("214")
	ColorFailed  = lipgloss.Color("203")
	ColorMuted   = lipgloss.Color("244")

	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	SubtitleStyle = lipgloss.NewStyle().Foreground(ColorLink).Bold(true)
	SuccessStyle  = lipgloss.NewStyle().Foreground(ColorOK).Bold(true)
	ErrorStyle    = lipgloss.NewStyle().Foreground(ColorFailed).Bold(true)
	WarningStyle  = lipgloss.NewStyle().Foreground(ColorPending)
	HelpStyle     = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
	URLStyle      = lipgloss.NewStyle().Foreground(ColorLink).Underline(true)
)

// Line prefixes for command output.
const (
	IconTool    = "🛠️ "
	IconSuccess = "✅"
	IconWarning = "⚠️ "
	IconError   = "❌"
	IconRocket  = "🚀"
	IconPackage = "📦"
	IconClock   = "⏳"
	IconTrash   = "🗑️ "
	IconWatch   = "👀"
)
