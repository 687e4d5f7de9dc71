package models

import (
	"strings"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityLow    AlertSeverity = "low"
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// Rank orders severities so they can be compared (low < medium < high).
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps free-form input onto a known severity.
// Unrecognised values fall back to SeverityLow.
func ParseSeverity(s string) AlertSeverity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical", "extreme", "severe", "urgent":
		return SeverityHigh
	case "medium", "moderate", "med":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DisasterType tags what kind of event an alert describes
type DisasterType string

const (
	DisasterFlood      DisasterType = "flood"
	DisasterLandslide  DisasterType = "landslide"
	DisasterWildfire   DisasterType = "wildfire"
	DisasterEarthquake DisasterType = "earthquake"
	DisasterStorm      DisasterType = "storm"
	DisasterUnknown    DisasterType = "unknown"
)

var disasterSynonyms = map[string]DisasterType{
	"flood":          DisasterFlood,
	"flooding":       DisasterFlood,
	"flash flood":    DisasterFlood,
	"landslide":      DisasterLandslide,
	"mudslide":       DisasterLandslide,
	"wildfire":       DisasterWildfire,
	"fire":           DisasterWildfire,
	"bushfire":       DisasterWildfire,
	"forest fire":    DisasterWildfire,
	"earthquake":     DisasterEarthquake,
	"quake":          DisasterEarthquake,
	"tremor":         DisasterEarthquake,
	"storm":          DisasterStorm,
	"thunderstorm":   DisasterStorm,
	"typhoon":        DisasterStorm,
	"hurricane":      DisasterStorm,
	"cyclone":        DisasterStorm,
	"tropical storm": DisasterStorm,
}

// ParseDisasterType maps free-form input onto a known disaster type.
// Unrecognised values fall back to DisasterUnknown.
func ParseDisasterType(s string) DisasterType {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", " ")
	if t, ok := disasterSynonyms[key]; ok {
		return t
	}
	return DisasterUnknown
}

// Location is where an alert was reported. Either part may be missing.
type Location struct {
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	PlaceName string   `json:"place_name,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Lat != nil && l.Lng != nil
}

// String renders the location for display
func (l *Location) String() string {
	if l == nil {
		return "Unknown location"
	}
	if l.PlaceName != "" {
		return l.PlaceName
	}
	if l.HasCoordinates() {
		return formatCoords(*l.Lat, *l.Lng)
	}
	return "Unknown location"
}

// AlertSource describes who posted the original content
type AlertSource struct {
	Username       string `json:"username,omitempty"`
	FollowersCount int    `json:"followers_count,omitempty"`
}

// Alert is the normalized disaster alert every source payload is coerced into
type Alert struct {
	ID                 string        `json:"id"`
	Text               string        `json:"text"`
	CreatedAt          time.Time     `json:"created_at"`
	TimestampEstimated bool          `json:"timestamp_estimated,omitempty"` // CreatedAt was missing or unparsable and set to fetch time
	Location           *Location     `json:"location,omitempty"`
	DisasterType       DisasterType  `json:"disaster_type"`
	Severity           AlertSeverity `json:"severity"`
	ConfidenceScore    *float64      `json:"confidence_score,omitempty"`
	Keywords           []string      `json:"keywords"`
	Source             AlertSource   `json:"source"`
	ObjectKey          string        `json:"object_key"` // bucket key the record was read from
}

// IsHighSeverity returns true for alerts that need immediate attention
func (a *Alert) IsHighSeverity() bool {
	return a.Severity == SeverityHigh
}

// FilterSeverity returns the alerts with exactly the given severity
func FilterSeverity(alerts []Alert, severity AlertSeverity) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Severity == severity {
			out = append(out, a)
		}
	}
	return out
}

// FilterType returns the alerts of the given disaster type
func FilterType(alerts []Alert, t DisasterType) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.DisasterType == t {
			out = append(out, a)
		}
	}
	return out
}
