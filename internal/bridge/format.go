package bridge

import "time"

// LastUpdateLayout renders timestamps the way hubs display them.
const LastUpdateLayout = "1/2/2006, 3:04:05 PM"

// FormatLastUpdate formats t in loc. The zero time formats as "".
func FormatLastUpdate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(LastUpdateLayout)
}
