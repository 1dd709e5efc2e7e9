package pipeline

import "time"

// Message is the normalized log record submitted to the queue.
// Inputs build one Message per accepted line and hand ownership to the
// queue on Submit; a submitted Message is never mutated or re-read by
// its producer.
type Message struct {
	// Timestamp is the message creation time. Zero means "not known at
	// the source"; the queue stamps the current time on Submit.
	Timestamp time.Time

	// Hostname and HostIP identify the host the message originated on.
	Hostname string
	HostIP   string

	// InputName names the input that produced the message.
	InputName string

	// Tag is the syslog-style tag, e.g. "kernel:".
	Tag string

	// Facility and Severity are the resolved syslog facility code and
	// severity level (0-7).
	Facility int
	Severity int

	// Raw is the message body as delivered by the source.
	Raw []byte
}
