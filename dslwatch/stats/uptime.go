package stats

import (
	"regexp"
	"strconv"
	"time"
)

var uptimeRe = regexp.MustCompile(`^(?:(\d+)\s*d(?:ays?)?,?\s*)?(\d+):(\d{2}):(\d{2})`)

// ParseUptime converts the driver's "3d 04:12:09" notation into a duration.
// The day component is optional.
func ParseUptime(s string) (time.Duration, bool) {
	m := uptimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	var days int
	if m[1] != "" {
		days, _ = strconv.Atoi(m[1])
	}
	h, _ := strconv.Atoi(m[2])
	mins, _ := strconv.Atoi(m[3])
	sec, _ := strconv.Atoi(m[4])
	d := time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(sec)*time.Second
	return d, true
}
