package http1

import "time"

// TimeFormat is the IMF-fixdate layout used in Date, Last-Modified and Expires.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// FormatTime formats t as an IMF-fixdate in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

var timeLayouts = []string{TimeFormat, time.RFC850, time.ANSIC}

// ParseTime parses an HTTP date in any of the three formats a recipient must accept.
func ParseTime(s string) (time.Time, error) {
	var (
		t   time.Time
		err error
	)
	for _, layout := range timeLayouts {
		t, err = time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
