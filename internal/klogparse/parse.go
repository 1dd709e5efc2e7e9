// Package klogparse provides pure parsing for kernel log lines: the
// <PRI> priority tag, the dual-PRI resolution needed for relayed
// messages, and the kernel's [sec.usec] uptime stamp.
//
// Everything here is a pure function of its inputs; no I/O, no state.
package klogparse

import (
	"strconv"
	"time"
)

// Syslog facility codes. Only the kernel facility matters to callers in
// this module; the rest exist for name lookups.
const (
	FacilityKernel = 0
)

// Syslog severity levels.
const (
	SeverityEmergency = 0
	SeverityAlert     = 1
	SeverityCritical  = 2
	SeverityError     = 3
	SeverityWarning   = 4
	SeverityNotice    = 5
	SeverityInfo      = 6
	SeverityDebug     = 7
)

// A secondary PRI a few bytes into a line (a relay wrapped the kernel's
// own tag) is only trusted inside this bound. Values outside it are more
// likely noise than a genuine wrapped priority, even when syntactically
// valid. The upper bound is 192, not the canonical 191.
const (
	minSecondaryPri = 8
	maxSecondaryPri = 192
)

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// ParsePRI recognizes "<digits>" at the start of data. It succeeds only
// when data begins with '<', at least one decimal digit follows, and the
// digit run is terminated by '>'. On success it returns the value and
// the remainder after '>'. On failure ok is false and pri/rest must not
// be used.
func ParsePRI(data []byte) (pri int, rest []byte, ok bool) {
	if len(data) < 2 || data[0] != '<' || !isDigit(data[1]) {
		return 0, data, false
	}

	i := 1
	for i < len(data) && isDigit(data[i]) {
		pri = pri*10 + int(data[i]-'0')
		i++
	}

	if i >= len(data) || data[i] != '>' {
		return 0, data, false
	}

	return pri, data[i+1:], true
}

// ResolvePriority determines the effective PRI for a kernel log line and
// the span to treat as message body.
//
// A second PRI can appear a few bytes into the line when the message was
// relayed through a secondary logging subsystem; in that case the inner
// tag is the authoritative one. The check is anchored at byte 3, or byte
// 4 when byte 3 is a space, and the candidate is adopted only when it
// decodes inside [8,192]. Otherwise a PRI at the very start of the line
// wins. Lines carrying no valid PRI at all are legitimate kernel output
// and fall back to defaultPri with the full line as body.
//
// Pure and idempotent: the same data and default always yield the same
// result.
func ResolvePriority(data []byte, defaultPri int) (pri int, body []byte) {
	off := -1
	switch {
	case len(data) > 3 && data[3] == '<':
		off = 3
	case len(data) > 4 && data[3] == ' ' && data[4] == '<':
		off = 4
	}
	if off > 0 {
		if p, rest, ok := ParsePRI(data[off:]); ok && p >= minSecondaryPri && p <= maxSecondaryPri {
			return p, rest
		}
	}

	if p, rest, ok := ParsePRI(data); ok {
		return p, rest
	}

	return defaultPri, data
}

// Facility extracts the facility code from a PRI value.
func Facility(pri int) int { return pri / 8 }

// Severity extracts the severity level from a PRI value.
func Severity(pri int) int { return pri % 8 }

// MakePri combines a facility code and severity level into a PRI value.
func MakePri(facility, severity int) int { return facility*8 + severity }

// ParseKernelStamp recognizes the kernel's "[  sec.usec] " uptime stamp
// at the start of a message body. Leading spaces inside the brackets are
// allowed; the fractional part is optional and read at microsecond
// precision. On success it returns the uptime as a duration and the body
// with the stamp (and one following space) removed.
func ParseKernelStamp(data []byte) (sinceBoot time.Duration, rest []byte, ok bool) {
	if len(data) < 3 || data[0] != '[' {
		return 0, data, false
	}

	i := 1
	for i < len(data) && data[i] == ' ' {
		i++
	}

	start := i
	var sec int64
	for i < len(data) && isDigit(data[i]) {
		sec = sec*10 + int64(data[i]-'0')
		i++
	}
	if i == start {
		return 0, data, false
	}

	var usec int64
	if i < len(data) && data[i] == '.' {
		i++
		fracStart := i
		digits := 0
		for i < len(data) && isDigit(data[i]) {
			if digits < 6 {
				usec = usec*10 + int64(data[i]-'0')
				digits++
			}
			i++
		}
		if i == fracStart {
			return 0, data, false
		}
		for digits < 6 {
			usec *= 10
			digits++
		}
	}

	if i >= len(data) || data[i] != ']' {
		return 0, data, false
	}
	i++
	if i < len(data) && data[i] == ' ' {
		i++
	}

	d := time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond
	return d, data[i:], true
}

var facilityNames = []string{
	"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
	"uucp", "cron", "authpriv", "ftp", "ntp", "audit", "alert", "clock",
	"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
}

var severityNames = []string{
	"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
}

// FacilityName returns the human-readable facility name.
func FacilityName(f int) string {
	if f >= 0 && f < len(facilityNames) {
		return facilityNames[f]
	}
	return "unknown"
}

// SeverityName returns the human-readable severity name.
func SeverityName(s int) string {
	if s >= 0 && s < len(severityNames) {
		return severityNames[s]
	}
	return "unknown"
}

// FacilityNumber resolves a facility given as a name ("local0") or a
// decimal code ("16").
func FacilityNumber(s string) (int, bool) {
	for i, name := range facilityNames {
		if s == name {
			return i, true
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= len(facilityNames) {
		return 0, false
	}
	return n, true
}
