package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// FormatAlert renders an alert as a human-readable notification
func FormatAlert(a models.Alert) Notification {
	severity := strings.ToUpper(string(a.Severity))

	var b strings.Builder
	b.WriteString("Disaster Alert\n\n")
	fmt.Fprintf(&b, "Type: %s\n", titleCase(string(a.DisasterType)))
	fmt.Fprintf(&b, "Location: %s\n", a.Location.String())
	fmt.Fprintf(&b, "Time: %s\n", a.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Severity: %s\n", severity)
	if a.ConfidenceScore != nil {
		fmt.Fprintf(&b, "Confidence: %.0f%%\n", *a.ConfidenceScore*100)
	}

	text := strings.TrimSpace(a.Text)
	if text == "" {
		text = "No summary available."
	}
	fmt.Fprintf(&b, "\nSummary:\n%s\n", text)

	b.WriteString("\nRecommended Actions:\n")
	b.WriteString("- Stay alert and follow local authority guidance\n")
	b.WriteString("- Ensure safety of affected residents\n")
	b.WriteString("- Coordinate with rescue teams if nearby\n")
	b.WriteString("\nSource: Automated Disaster Monitoring System")

	return Notification{
		Subject: fmt.Sprintf("Disaster Alert - %s", severity),
		Message: b.String(),
		Attributes: map[string]string{
			"severity":      string(a.Severity),
			"disaster_type": string(a.DisasterType),
			"event_time":    a.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
