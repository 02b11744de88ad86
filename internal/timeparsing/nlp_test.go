package timeparsing

import (
	"strings"
	"testing"
	"time"
)

// TestParseNaturalLanguage tests the NLP parser wrapper.
func TestParseNaturalLanguage(t *testing.T) {
	// Fixed reference time: Wednesday, January 15, 2025, 10:00:00 AM
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantErr   bool
	}{
		// Relative days
		{
			name:      "yesterday",
			input:     "yesterday",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   14,
		},
		{
			name:      "tomorrow",
			input:     "tomorrow",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   16,
		},

		// Weekdays (reference is Wednesday Jan 15)
		{
			name:      "next monday",
			input:     "next monday",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   20,
		},
		{
			name:      "last friday",
			input:     "last friday",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   10,
		},

		// Relative spans
		{
			name:      "2 days ago",
			input:     "2 days ago",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   13,
		},
		{
			name:      "in 1 week",
			input:     "in 1 week",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   22,
		},

		// Unparseable input
		{
			name:    "random text",
			input:   "not a date at all",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseNaturalLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if got.Year() != tt.wantYear || got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseNaturalLanguage(%q) = %v, want %d-%02d-%02d",
					tt.input, got, tt.wantYear, tt.wantMonth, tt.wantDay)
			}
		})
	}
}

// TestParseRelativeTime tests the layered dispatch: compact duration first,
// then natural language, then absolute formats.
func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantErr   bool
	}{
		{
			name:      "compact duration counts backwards",
			input:     "3d",
			wantYear:  2025,
			wantMonth: time.June,
			wantDay:   12,
		},
		{
			name:      "explicit future duration",
			input:     "+1w",
			wantYear:  2025,
			wantMonth: time.June,
			wantDay:   22,
		},
		{
			name:      "natural language",
			input:     "yesterday",
			wantYear:  2025,
			wantMonth: time.June,
			wantDay:   14,
		},
		{
			name:      "date only",
			input:     "2025-01-02",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   2,
		},
		{
			name:      "date and time",
			input:     "2025-03-04 09:30",
			wantYear:  2025,
			wantMonth: time.March,
			wantDay:   4,
		},
		{
			name:      "RFC3339",
			input:     "2025-02-03T04:05:06Z",
			wantYear:  2025,
			wantMonth: time.February,
			wantDay:   3,
		},
		{
			name:    "unrecognized",
			input:   "not-a-date",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRelativeTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if err != nil && !strings.Contains(err.Error(), "unrecognized") {
					t.Errorf("error %q should mention unrecognized input", err)
				}
				return
			}
			if got.Year() != tt.wantYear || got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseRelativeTime(%q) = %v, want %d-%02d-%02d",
					tt.input, got, tt.wantYear, tt.wantMonth, tt.wantDay)
			}
		})
	}
}
