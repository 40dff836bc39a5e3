package extract

import (
	"regexp"
	"strconv"
)

var (
	isoDurationRe = regexp.MustCompile(`(?i)^P(?:([\d.]+)D)?T?(?:([\d.]+)H)?(?:([\d.]+)M)?(?:([\d.]+)S)?$`)
	firstIntRe    = regexp.MustCompile(`\d+`)
)

// ParseDurationMinutes converts an ISO-8601-like duration ("PT1H30M") to
// whole minutes. Anything else falls back to the first integer token in the
// string. Unparsable values yield 0, never an error.
func ParseDurationMinutes(v string) int {
	if v == "" {
		return 0
	}
	if m := isoDurationRe.FindStringSubmatch(v); m != nil {
		days := parseFloat(m[1])
		hours := parseFloat(m[2])
		minutes := parseFloat(m[3])
		seconds := parseFloat(m[4])
		total := int(days*24*60 + hours*60 + minutes + seconds/60)
		if total > 0 {
			return total
		}
	}
	return firstInt(v)
}

func firstInt(v string) int {
	if m := firstIntRe.FindString(v); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	return 0
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
