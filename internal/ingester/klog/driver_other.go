//go:build !linux

package klog

import (
	"errors"
	"time"
)

const defaultKlogPath = "/dev/klog"

var errPlatformUnsupported = errors.New("not supported on this platform")

func setConsoleLogLevel(level int) error {
	return errPlatformUnsupported
}

func bootTime() (time.Time, error) {
	return time.Time{}, errPlatformUnsupported
}
