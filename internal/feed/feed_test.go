package feed

import (
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ngmaloney/disaster-terminal/internal/awserr"
	"github.com/ngmaloney/disaster-terminal/internal/models"
)

var fetchedAt = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

const record = `{"id":"t1","text":"Flash flood in Shah Alam","created_at":"2024-01-15T10:00:00Z",
"location":{"lat":3.0733,"lng":101.5185,"place_name":"Shah Alam"},"disaster_type":"flood",
"severity":"high","confidence_score":0.92,"keywords":["flood","banjir"],
"user":{"username":"mets_my","followers_count":1200}}`

func TestDecode_EnvelopesAreEquivalent(t *testing.T) {
	payloads := map[string]string{
		"array":  "[" + record + "]",
		"alerts": `{"alerts":[` + record + `]}`,
		"data":   `{"data":[` + record + `],"count":1}`,
		"items":  `{"items":[` + record + `]}`,
		"single": record,
	}

	want, err := Decode("k.json", []byte("["+record+"]"), fetchedAt)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	for name, body := range payloads {
		t.Run(name, func(t *testing.T) {
			got, err := Decode("k.json", []byte(body), fetchedAt)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Decode(%s) = %+v, want %+v", name, got, want)
			}
		})
	}
}

func TestSniff_Shapes(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantShape   Shape
		wantWrapper string
		wantCount   int
		wantErr     error
	}{
		{"empty array", `[]`, ShapeArray, "", 0, nil},
		{"array skips scalars", `[1, "x", {"id":"a"}, null]`, ShapeArray, "", 1, nil},
		{"alerts before data", `{"data":[{"id":"d"}],"alerts":[{"id":"a"},{"id":"b"}]}`, ShapeWrapped, "alerts", 2, nil},
		{"non-array wrapper ignored", `{"alerts":{"id":"x"},"items":[{"id":"i"}]}`, ShapeWrapped, "items", 1, nil},
		{"empty data", `{"data":[]}`, ShapeWrapped, "data", 0, nil},
		{"single record", `{"severity":"low"}`, ShapeSingle, "", 1, nil},
		{"unrelated object", `{"status":"ok"}`, ShapeUnsupported, "", 0, ErrUnsupportedShape},
		{"scalar", `42`, ShapeUnsupported, "", 0, ErrUnsupportedShape},
		{"invalid json", `{"alerts": [`, ShapeUnsupported, "", 0, ErrInvalidJSON},
		{"empty body", ``, ShapeUnsupported, "", 0, ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Sniff("x.json", []byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Sniff() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, awserr.ErrParse) {
					t.Errorf("Sniff() error should match awserr.ErrParse")
				}
				var pe *ParseError
				if !errors.As(err, &pe) || pe.Key != "x.json" {
					t.Errorf("Sniff() error should be a *ParseError for x.json, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sniff() error = %v", err)
			}
			if env.Shape != tt.wantShape {
				t.Errorf("Shape = %v, want %v", env.Shape, tt.wantShape)
			}
			if env.Wrapper != tt.wantWrapper {
				t.Errorf("Wrapper = %q, want %q", env.Wrapper, tt.wantWrapper)
			}
			if len(env.Records) != tt.wantCount {
				t.Errorf("len(Records) = %d, want %d", len(env.Records), tt.wantCount)
			}
		})
	}
}

func TestDecode_Normalization(t *testing.T) {
	got, err := Decode("2024/01/15/batch.json", []byte("["+record+"]"), fetchedAt)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	a := got[0]

	if a.ID != "t1" {
		t.Errorf("ID = %q, want t1", a.ID)
	}
	if want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC); !a.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", a.CreatedAt, want)
	}
	if a.TimestampEstimated {
		t.Error("TimestampEstimated should be false for a parsed timestamp")
	}
	if a.Severity != models.SeverityHigh {
		t.Errorf("Severity = %v, want high", a.Severity)
	}
	if a.DisasterType != models.DisasterFlood {
		t.Errorf("DisasterType = %v, want flood", a.DisasterType)
	}
	if a.Location == nil || a.Location.PlaceName != "Shah Alam" || !a.Location.HasCoordinates() {
		t.Errorf("Location = %+v, want Shah Alam with coordinates", a.Location)
	}
	if a.ConfidenceScore == nil || *a.ConfidenceScore != 0.92 {
		t.Errorf("ConfidenceScore = %v, want 0.92", a.ConfidenceScore)
	}
	if !reflect.DeepEqual(a.Keywords, []string{"flood", "banjir"}) {
		t.Errorf("Keywords = %v", a.Keywords)
	}
	if a.Source.Username != "mets_my" || a.Source.FollowersCount != 1200 {
		t.Errorf("Source = %+v", a.Source)
	}
	if a.ObjectKey != "2024/01/15/batch.json" {
		t.Errorf("ObjectKey = %q", a.ObjectKey)
	}
}

func TestDecode_Fallbacks(t *testing.T) {
	body := `[{"severity":"catastrophic","disaster_type":"volcano"},{"text":"second"}]`

	got, err := Decode("raw.json", []byte(body), fetchedAt)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	a := got[0]
	if a.Severity != models.SeverityLow {
		t.Errorf("Severity = %v, want low fallback", a.Severity)
	}
	if a.DisasterType != models.DisasterUnknown {
		t.Errorf("DisasterType = %v, want unknown fallback", a.DisasterType)
	}
	if !a.CreatedAt.Equal(fetchedAt) || !a.TimestampEstimated {
		t.Errorf("CreatedAt = %v estimated=%v, want fetch time estimated", a.CreatedAt, a.TimestampEstimated)
	}
	if a.Keywords == nil {
		t.Error("Keywords should never be nil")
	}
	if a.Location != nil {
		t.Errorf("Location = %+v, want nil", a.Location)
	}
	if a.ConfidenceScore != nil {
		t.Errorf("ConfidenceScore = %v, want nil", *a.ConfidenceScore)
	}

	if a.ID == "" || a.ID == got[1].ID {
		t.Errorf("synthetic ids should be non-empty and distinct: %q %q", a.ID, got[1].ID)
	}
	if a.ID != SyntheticID("raw.json", 0) {
		t.Errorf("ID = %q, want deterministic SyntheticID", a.ID)
	}
}

func TestDecode_AlternateShapes(t *testing.T) {
	body := `[
		{"id":"a","coordinates":"3.1390, 101.6869","confidence":"94%","timestamp":1705312800},
		{"id":"b","coordinates":{"lat":4.4696,"lng":101.3778},"location":"Cameron Highlands","createdAt":"1705316400000"},
		{"id":"c","location":{"latitude":"5.41","longitude":"100.33"},"confidence_score":150,"keywords":"storm, wind"}
	]`

	got, err := Decode("alt.json", []byte(body), fetchedAt)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	if !got[0].Location.HasCoordinates() || *got[0].Location.Lat != 3.1390 {
		t.Errorf("string coordinates not parsed: %+v", got[0].Location)
	}
	if got[0].ConfidenceScore == nil || *got[0].ConfidenceScore != 0.94 {
		t.Errorf("percent confidence = %v, want 0.94", got[0].ConfidenceScore)
	}
	if want := time.Unix(1705312800, 0).UTC(); !got[0].CreatedAt.Equal(want) {
		t.Errorf("epoch seconds CreatedAt = %v, want %v", got[0].CreatedAt, want)
	}

	if got[1].Location.PlaceName != "Cameron Highlands" || !got[1].Location.HasCoordinates() {
		t.Errorf("Location = %+v", got[1].Location)
	}
	if want := time.UnixMilli(1705316400000).UTC(); !got[1].CreatedAt.Equal(want) {
		t.Errorf("epoch millis CreatedAt = %v, want %v", got[1].CreatedAt, want)
	}

	if !got[2].Location.HasCoordinates() {
		t.Errorf("string lat/lng not parsed: %+v", got[2].Location)
	}
	if got[2].ConfidenceScore == nil || *got[2].ConfidenceScore != 1 {
		t.Errorf("confidence should clamp to 1, got %v", got[2].ConfidenceScore)
	}
	if !reflect.DeepEqual(got[2].Keywords, []string{"storm", "wind"}) {
		t.Errorf("Keywords = %v", got[2].Keywords)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-01-15T10:00:00Z", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), false},
		{"2024-01-15T10:00:00.250+08:00", time.Date(2024, 1, 15, 2, 0, 0, 250e6, time.UTC), false},
		{"2024-01-15 10:00:00", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), false},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"1705312800", time.Unix(1705312800, 0).UTC(), false},
		{"yesterday", time.Time{}, true},
		{"", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDedupeIDs(t *testing.T) {
	tests := []struct {
		name    string
		records []models.Alert
	}{
		{
			name:    "repeat in one object",
			records: []models.Alert{{ID: "a", ObjectKey: "k1"}, {ID: "b", ObjectKey: "k1"}, {ID: "a", ObjectKey: "k1"}},
		},
		{
			name:    "suffix collides with existing id",
			records: []models.Alert{{ID: "a-2", ObjectKey: "k1"}, {ID: "a", ObjectKey: "k1"}, {ID: "a", ObjectKey: "k1"}},
		},
		{
			name:    "same id across objects",
			records: []models.Alert{{ID: "x", ObjectKey: "k1"}, {ID: "x", ObjectKey: "k2"}, {ID: "x", ObjectKey: "k2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			firstID := tt.records[0].ID
			DedupeIDs(tt.records)

			seen := make(map[string]bool)
			for _, r := range tt.records {
				if seen[r.ID] {
					t.Fatalf("duplicate id %q in %+v", r.ID, tt.records)
				}
				seen[r.ID] = true
			}
			if tt.records[0].ID != firstID {
				t.Errorf("first id changed: %q, want %q", tt.records[0].ID, firstID)
			}
		})
	}
}

func TestDedupeIDs_StableAcrossPolls(t *testing.T) {
	poll1 := []models.Alert{{ID: "a", ObjectKey: "old"}, {ID: "a", ObjectKey: "old"}}
	poll2 := []models.Alert{{ID: "z", ObjectKey: "new"}, {ID: "a", ObjectKey: "old"}, {ID: "a", ObjectKey: "old"}}
	DedupeIDs(poll1)
	DedupeIDs(poll2)

	if poll1[1].ID != poll2[2].ID {
		t.Errorf("repeated id changed between polls: %q then %q", poll1[1].ID, poll2[2].ID)
	}
	if poll1[0].ID != "a" || poll2[1].ID != "a" {
		t.Errorf("first occurrence should keep its id: %q %q", poll1[0].ID, poll2[1].ID)
	}
}

func TestConfidence_Percentages(t *testing.T) {
	tests := []struct {
		body string
		want float64
	}{
		{`{"confidence_score":0.4}`, 0.4},
		{`{"confidence_score":85}`, 0.85},
		{`{"confidence":"85%"}`, 0.85},
		{`{"confidence_score":250}`, 1},
		{`{"confidence_score":-3}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got := confidence(gjson.Parse(tt.body))
			if got == nil || *got != tt.want {
				t.Errorf("confidence(%s) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestDecode_Testdata(t *testing.T) {
	files := []struct {
		path  string
		count int
	}{
		{"testdata/alerts_wrapped.json", 3},
		{"testdata/tweets_array.json", 2},
	}

	for _, f := range files {
		t.Run(f.path, func(t *testing.T) {
			body, err := os.ReadFile(f.path)
			if err != nil {
				t.Fatalf("read %s: %v", f.path, err)
			}
			got, err := Decode(f.path, body, fetchedAt)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(got) != f.count {
				t.Errorf("len = %d, want %d", len(got), f.count)
			}
			for _, a := range got {
				if a.CreatedAt.IsZero() {
					t.Errorf("record %s has zero CreatedAt", a.ID)
				}
			}
		})
	}
}
