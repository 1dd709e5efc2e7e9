//go:build linux

package klog

import (
	"time"

	"golang.org/x/sys/unix"
)

const defaultKlogPath = "/proc/kmsg"

// setConsoleLogLevel applies the level via the kernel syslog syscall.
// The syscall conveys the level as the buffer length.
func setConsoleLogLevel(level int) error {
	_, err := unix.Klogctl(unix.SYSLOG_ACTION_CONSOLE_LEVEL, make([]byte, level))
	return err
}

// bootTime derives the wall-clock boot time from CLOCK_BOOTTIME, the
// clock the kernel's [sec.usec] stamps count against.
func bootTime() (time.Time, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(-time.Duration(ts.Nano())), nil
}
