package extract

import (
	"fmt"
	"strings"
	"time"
)

type isoLayout struct {
	layout  string
	hasZone bool
}

// isoLayouts are the ISO-8601 shapes accepted for publication times. Go parses
// fractional seconds after the seconds field even when a layout omits them.
var isoLayouts = []isoLayout{
	{layout: time.RFC3339Nano, hasZone: true},
	{layout: "2006-01-02 15:04:05Z07:00", hasZone: true},
	{layout: "2006-01-02T15:04Z07:00", hasZone: true},
	{layout: "2006-01-02T15:04:05-0700", hasZone: true},
	{layout: "2006-01-02T15:04:05", hasZone: false},
	{layout: "2006-01-02 15:04:05", hasZone: false},
	{layout: "2006-01-02T15:04", hasZone: false},
	{layout: "2006-01-02", hasZone: false},
}

// normalizeISO parses value as ISO-8601 and re-emits it as
// YYYY-MM-DDTHH:MM:SS[.ffffff][±HH:MM]. The offset is only present when the
// input carried one.
func normalizeISO(value string) (string, error) {
	value = strings.TrimSpace(value)
	for _, l := range isoLayouts {
		t, err := time.Parse(l.layout, value)
		if err != nil {
			continue
		}
		return formatTimestamp(t, l.hasZone), nil
	}
	return "", fmt.Errorf("unrecognized timestamp %q", value)
}

func formatTimestamp(t time.Time, withZone bool) string {
	var b strings.Builder
	b.WriteString(t.Format("2006-01-02T15:04:05"))
	if micros := t.Nanosecond() / int(time.Microsecond); micros != 0 {
		fmt.Fprintf(&b, ".%06d", micros)
	}
	if withZone {
		b.WriteString(t.Format("-07:00"))
	}
	return b.String()
}
