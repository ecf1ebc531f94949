package evaluator

import (
	"fmt"
	"strings"
	"time"
)

type dateTime struct {
	t time.Time
	// tz is the lexical timezone: "", "Z" or "+hh:mm".
	tz string
}

var (
	layoutZoned = "2006-01-02T15:04:05.999999999Z07:00"
	layoutLocal = "2006-01-02T15:04:05.999999999"
)

// parseDateTime reads an xsd:dateTime lexical form, keeping its timezone.
// A value without timezone is read as UTC.
func parseDateTime(s string) (dateTime, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(layoutZoned, s); err == nil {
		tz := "Z"
		if !strings.HasSuffix(s, "Z") {
			tz = s[len(s)-6:]
		}
		return dateTime{t: t, tz: tz}, nil
	}
	t, err := time.Parse(layoutLocal, s)
	if err != nil {
		return dateTime{}, typeError("invalid dateTime %q", s)
	}
	return dateTime{t: t}, nil
}

// dayTimeDuration renders a zone offset as xsd:dayTimeDuration.
func dayTimeDuration(t time.Time) string {
	_, offset := t.Zone()
	if offset == 0 {
		return "PT0S"
	}
	sign := ""
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h, m := offset/3600, (offset%3600)/60
	switch {
	case m == 0:
		return fmt.Sprintf("%sPT%dH", sign, h)
	case h == 0:
		return fmt.Sprintf("%sPT%dM", sign, m)
	default:
		return fmt.Sprintf("%sPT%dH%dM", sign, h, m)
	}
}
