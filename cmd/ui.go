package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorCyan  = lipgloss.Color("36")
	colorGreen = lipgloss.Color("35")
	colorAmber = lipgloss.Color("220")
	colorRed   = lipgloss.Color("167")
	colorDim   = lipgloss.Color("240")
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Foreground(colorAmber)
	styleError   = lipgloss.NewStyle().Foreground(colorRed)
	styleLabel   = lipgloss.NewStyle().Width(14).Foreground(colorDim)
)

const (
	iconSuccess = "✓"
	iconWarning = "!"
	iconError   = "✗"
	iconArrow   = "→"
)

func printSuccess(format string, args ...any) {
	fmt.Println(styleSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Println(styleWarning.Render(iconWarning) + " " + styleWarning.Render(fmt.Sprintf(format, args...)))
}

// printField prints an aligned "label value" line.
func printField(label string, value any) {
	fmt.Println("  " + styleLabel.Render(label) + fmt.Sprint(value))
}

func num(format string, args ...any) string {
	return styleNumber.Render(fmt.Sprintf(format, args...))
}

// stateStyle colors a job state for terminal output.
func stateStyle(state string) string {
	switch state {
	case "completed":
		return styleSuccess.Render(state)
	case "failed":
		return styleError.Render(state)
	case "cancelled", "paused":
		return styleWarning.Render(state)
	default:
		return styleNumber.Render(state)
	}
}
