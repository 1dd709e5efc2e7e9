package klog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"kernlog/internal/klogparse"
	"kernlog/internal/logging"
)

// maxLineSize bounds a single kernel log line. The kernel's own record
// buffer is far smaller; this is a sanity limit for odd sources.
const maxLineSize = 1024 * 1024

// kmsgDriver reads newline-delimited klog-format lines from a character
// device or regular file. The blocking read runs on its own goroutine
// and is unblocked by closing the source, so Read stays cancellable.
// End-of-file on a regular file is treated as a clean stop.
type kmsgDriver struct {
	path         string
	consoleLevel int
	logger       *slog.Logger
	intLog       InternalLogger

	f     *os.File
	lines chan []byte
	stop  chan struct{}

	mu      sync.Mutex
	readErr error

	readerWg  sync.WaitGroup
	closeOnce sync.Once
}

// newKmsgDriver builds the platform kernel log driver. An empty path in
// cfg selects the platform default source.
func newKmsgDriver(cfg Config, logger *slog.Logger, intLog InternalLogger) *kmsgDriver {
	path := cfg.Path
	if path == "" {
		path = defaultKlogPath
	}
	return &kmsgDriver{
		path:         path,
		consoleLevel: cfg.ConsoleLogLevel,
		logger:       logging.Default(logger).With("component", "driver", "source", path),
		intLog:       intLog,
	}
}

// Start implements Driver.
func (d *kmsgDriver) Start() error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("open kernel log source: %w", err)
	}
	d.f = f
	d.lines = make(chan []byte)
	d.stop = make(chan struct{})

	if d.consoleLevel >= 0 {
		if err := setConsoleLogLevel(d.consoleLevel); err != nil {
			d.logger.Warn("cannot set console log level", "level", d.consoleLevel, "error", err)
		} else {
			d.logger.Info("console log level set", "level", d.consoleLevel)
		}
	}

	d.readerWg.Add(1)
	go func() {
		defer d.readerWg.Done()
		d.read()
	}()

	if d.intLog != nil {
		d.intLog(klogparse.SeverityInfo, fmt.Sprintf("kernel log input: log source %s started", d.path))
	}
	return nil
}

// read pumps lines from the source until EOF, a read error, or Stop.
func (d *kmsgDriver) read() {
	defer close(d.lines)

	scanner := bufio.NewScanner(d.f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Copy: the scanner reuses its buffer.
		buf := make([]byte, len(line))
		copy(buf, line)

		select {
		case d.lines <- buf:
		case <-d.stop:
			return
		}
	}

	// A read against a source we closed ourselves is a clean stop.
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		d.mu.Lock()
		d.readErr = err
		d.mu.Unlock()
	}
}

// Read implements Driver.
func (d *kmsgDriver) Read(ctx context.Context) (RawLine, error) {
	select {
	case <-ctx.Done():
		return RawLine{}, ctx.Err()
	case line, ok := <-d.lines:
		if !ok {
			d.mu.Lock()
			err := d.readErr
			d.mu.Unlock()
			if err != nil {
				return RawLine{}, fmt.Errorf("read kernel log source: %w", err)
			}
			return RawLine{}, ErrDriverClosed
		}
		return RawLine{Data: line}, nil
	}
}

// Stop implements Driver. Closing the source unblocks the reader
// goroutine; Stop waits for it so no read races the closed file.
func (d *kmsgDriver) Stop() error {
	if d.stop == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		close(d.stop)
		_ = d.f.Close()
	})
	d.readerWg.Wait()
	return nil
}
