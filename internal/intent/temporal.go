package intent

import (
	"strings"
	"time"
)

var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 pm",
	"3:04pm",
	"3 pm",
	"3pm",
}

var meridiemReplacer = strings.NewReplacer("p. m.", "pm", "a. m.", "am", "p.m.", "pm", "a.m.", "am")

// ParseInstant interprets a temporal literal produced by the model. Zone-less
// values are placed in now's location. A bare time of day is combined with
// now's calendar date. The second result is false when nothing matched.
func ParseInstant(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}

	loc := now.Location()
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}

	clock := meridiemReplacer.Replace(strings.ToLower(value))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			y, m, d := now.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc), true
		}
	}

	return time.Time{}, false
}
