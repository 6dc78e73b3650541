// Package dates normalizes inconsistent textual timestamps found in feed
// documents into absolute instants. It is the last fallback of the publish
// date resolution chain, after the parser-reported date fields.
package dates

import (
	"fmt"
	"strings"
	"time"
)

// layouts tried for direct parsing, most common feed formats first
var layouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	time.RFC850,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"January 2, 2006 15:04:05",
	"2006-01-02",
}

// tokenReplacer substitutes non-English weekday and month tokens with their
// English abbreviations by literal replacement. Multi-character months
// (十一月, 十二月) are listed before their single-character prefixes so the
// longer token wins.
var tokenReplacer = strings.NewReplacer(
	// months, longest first
	"十一月", "Nov",
	"十二月", "Dec",
	"一月", "Jan",
	"二月", "Feb",
	"三月", "Mar",
	"四月", "Apr",
	"五月", "May",
	"六月", "Jun",
	"七月", "Jul",
	"八月", "Aug",
	"九月", "Sep",
	"十月", "Oct",

	// weekdays, traditional
	"週一", "Mon",
	"週二", "Tue",
	"週三", "Wed",
	"週四", "Thu",
	"週五", "Fri",
	"週六", "Sat",
	"週日", "Sun",

	// weekdays, simplified
	"周一", "Mon",
	"周二", "Tue",
	"周三", "Wed",
	"周四", "Thu",
	"周五", "Fri",
	"周六", "Sat",
	"周日", "Sun",

	// weekdays, 星期 form
	"星期一", "Mon",
	"星期二", "Tue",
	"星期三", "Wed",
	"星期四", "Thu",
	"星期五", "Fri",
	"星期六", "Sat",
	"星期日", "Sun",
	"星期天", "Sun",
)

// Normalize parses raw into an instant. It tries the known layouts directly,
// then substitutes localized tokens and retries. Returns an error, not a zero
// guess, when the string remains unparseable.
func Normalize(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	if ts, err := parse(raw); err == nil {
		return ts, nil
	}

	substituted := tokenReplacer.Replace(raw)
	if substituted != raw {
		if ts, err := parse(substituted); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func parse(s string) (time.Time, error) {
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", s)
}
