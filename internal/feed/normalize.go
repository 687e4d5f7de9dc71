package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// idNamespace seeds synthetic record ids
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ngmaloney/disaster-terminal/alerts"))

// SyntheticID derives a stable id for a record that has none
func SyntheticID(key string, index int) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s#%d", key, index))).String()
}

// Normalize coerces one raw record into an Alert
func Normalize(rec gjson.Result, key string, index int, fetchedAt time.Time) models.Alert {
	a := models.Alert{
		ID:           pickStr(rec, "id", "id_str", "alert_id"),
		Text:         pickStr(rec, "text", "message", "description", "summary"),
		DisasterType: models.ParseDisasterType(pickStr(rec, "disaster_type", "disasterType", "type")),
		Severity:     models.ParseSeverity(pickStr(rec, "severity", "severity_level")),
		Keywords:     keywords(rec.Get("keywords")),
		Source:       source(rec),
		ObjectKey:    key,
	}
	if a.ID == "" {
		a.ID = SyntheticID(key, index)
	}

	a.CreatedAt, a.TimestampEstimated = createdAt(rec, fetchedAt)
	a.Location = location(rec)
	a.ConfidenceScore = confidence(rec)
	return a
}

// DedupeIDs makes ids unique within records. A repeated id gets a suffix
// derived from its object key and its position within that object, so the
// same record keeps the same id across polls.
func DedupeIDs(records []models.Alert) {
	seen := make(map[string]bool, len(records))
	for i := range records {
		seen[records[i].ID] = true
	}

	first := make(map[string]bool, len(records))
	perObject := make(map[string]int)
	for i := range records {
		key := records[i].ObjectKey
		index := perObject[key]
		perObject[key]++

		id := records[i].ID
		if !first[id] {
			first[id] = true
			continue
		}
		suffix := SyntheticID(key, index)[:8]
		candidate := id + "-" + suffix
		for n := 2; seen[candidate]; n++ {
			candidate = fmt.Sprintf("%s-%s-%d", id, suffix, n)
		}
		records[i].ID = candidate
		seen[candidate] = true
		first[candidate] = true
	}
}

// pickStr returns the first non-empty string value among keys
func pickStr(rec gjson.Result, keys ...string) string {
	for _, k := range keys {
		v := rec.Get(k)
		switch v.Type {
		case gjson.String, gjson.Number:
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func createdAt(rec gjson.Result, fetchedAt time.Time) (time.Time, bool) {
	for _, k := range []string{"created_at", "createdAt", "timestamp", "time"} {
		v := rec.Get(k)
		var (
			t   time.Time
			err error
		)
		switch v.Type {
		case gjson.Number:
			t = fromEpoch(v.Int())
		case gjson.String:
			t, err = ParseTime(v.Str)
		default:
			continue
		}
		if err == nil && !t.IsZero() {
			return t, false
		}
	}
	return fetchedAt.UTC(), true
}

// ParseTime parses timestamps in the formats the pipeline has produced:
// RFC3339 (with or without fractional seconds), epoch seconds or
// milliseconds, and a couple of plain layouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if len(s) >= 10 && isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return fromEpoch(n), nil
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time: %q", s)
}

// fromEpoch treats values past the year 33658 in seconds as milliseconds
func fromEpoch(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n >= 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func location(rec gjson.Result) *models.Location {
	loc := &models.Location{}

	switch l := rec.Get("location"); {
	case l.IsObject():
		loc.Lat = floatPtr(l, "lat", "latitude")
		loc.Lng = floatPtr(l, "lng", "lon", "long", "longitude")
		loc.PlaceName = pickStr(l, "place_name", "placeName", "name", "full_name")
	case l.Type == gjson.String:
		loc.PlaceName = strings.TrimSpace(l.Str)
	}

	if !loc.HasCoordinates() {
		switch c := rec.Get("coordinates"); {
		case c.IsObject():
			loc.Lat = floatPtr(c, "lat", "latitude")
			loc.Lng = floatPtr(c, "lng", "lon", "long", "longitude")
		case c.IsArray() && len(c.Array()) == 2:
			// GeoJSON order
			lng, lat := c.Array()[0].Float(), c.Array()[1].Float()
			loc.Lat, loc.Lng = &lat, &lng
		case c.Type == gjson.String:
			loc.Lat, loc.Lng = parsePair(c.Str)
		}
	}

	if !loc.HasCoordinates() {
		loc.Lat, loc.Lng = nil, nil
	}
	if loc.PlaceName == "" && !loc.HasCoordinates() {
		return nil
	}
	return loc
}

func floatPtr(obj gjson.Result, keys ...string) *float64 {
	for _, k := range keys {
		v := obj.Get(k)
		switch v.Type {
		case gjson.Number:
			f := v.Float()
			return &f
		case gjson.String:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// parsePair reads "lat, lng"
func parsePair(s string) (*float64, *float64) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &lat, &lng
}

func confidence(rec gjson.Result) *float64 {
	v := rec.Get("confidence_score")
	if !v.Exists() {
		v = rec.Get("confidence")
	}

	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		pct := strings.HasSuffix(s, "%")
		n, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return nil
		}
		if pct {
			n /= 100
		}
		f = n
	default:
		return nil
	}

	// 1 < f <= 100 is a percentage
	if f > 1 && f <= 100 {
		f /= 100
	}
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	return &f
}

func keywords(v gjson.Result) []string {
	out := make([]string, 0)
	switch {
	case v.IsArray():
		v.ForEach(func(_, k gjson.Result) bool {
			if s := strings.TrimSpace(k.String()); s != "" && k.Type == gjson.String {
				out = append(out, s)
			}
			return true
		})
	case v.Type == gjson.String:
		for _, s := range strings.Split(v.Str, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func source(rec gjson.Result) models.AlertSource {
	u := rec.Get("user")
	if !u.IsObject() {
		u = rec.Get("source")
	}
	if !u.IsObject() {
		return models.AlertSource{Username: pickStr(rec, "username", "author")}
	}
	return models.AlertSource{
		Username:       pickStr(u, "username", "screen_name", "name"),
		FollowersCount: int(firstNumber(u, "followers_count", "followersCount")),
	}
}

func firstNumber(obj gjson.Result, keys ...string) int64 {
	for _, k := range keys {
		if v := obj.Get(k); v.Type == gjson.Number {
			return v.Int()
		}
	}
	return 0
}
