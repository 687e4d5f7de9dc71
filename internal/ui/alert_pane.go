package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// getSeverityStyle returns the appropriate style for an alert severity
func getSeverityStyle(severity models.AlertSeverity) lipgloss.Style {
	switch severity {
	case models.SeverityHigh:
		return severityHighStyle
	case models.SeverityMedium:
		return severityMediumStyle
	case models.SeverityLow:
		return severityLowStyle
	default:
		return valueStyle
	}
}
