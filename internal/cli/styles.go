// Package cli renders harvest's terminal output with lipgloss and drives the
// interactive parts of record and play.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette. PrimaryColor is the harvest amber used for titles, headers and prompts.
var (
	PrimaryColor = lipgloss.Color("#D9962B")
	SuccessColor = lipgloss.Color("#5FB98E")
	WarningColor = lipgloss.Color("#F2C94C")
	ErrorColor   = lipgloss.Color("#E5534B")
	InfoColor    = lipgloss.Color("#7FB8D6")
	SubtleColor  = lipgloss.Color("#7A7A7A")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).MarginBottom(1)
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
	InfoStyle    = lipgloss.NewStyle().Foreground(InfoColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(SubtleColor)
	PromptStyle  = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)

	// TableHeaderStyle and TableCellStyle pad columns for RenderCandidates.
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true).PaddingRight(2).Foreground(PrimaryColor)
	TableCellStyle   = lipgloss.NewStyle().PaddingRight(2)

	// BoxStyle frames a single recipe in RenderRecipe.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(SubtleColor).
			Padding(0, 1)
)

// Message prefixes.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "!"
	InfoIcon    = "›"
	HarvestIcon = "🌾"
	LockIcon    = "🔒"
)

func prefixed(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess renders a one-line success message.
func FormatSuccess(message string) string { return prefixed(SuccessStyle, SuccessIcon, message) }

// FormatError renders a one-line failure that does not abort the command.
func FormatError(message string) string { return prefixed(ErrorStyle, ErrorIcon, message) }

// FormatWarning renders a one-line warning.
func FormatWarning(message string) string { return prefixed(WarningStyle, WarningIcon, message) }

// FormatInfo renders a one-line note.
func FormatInfo(message string) string { return prefixed(InfoStyle, InfoIcon, message) }

// FormatTitle renders a section title.
func FormatTitle(title string) string { return prefixed(TitleStyle, HarvestIcon, title) }

// FormatPrompt renders an input prompt, leaving the cursor after it.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt+":") + " "
}

// RenderBox renders content under a bold title inside a border.
func RenderBox(title, content string) string {
	heading := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}
