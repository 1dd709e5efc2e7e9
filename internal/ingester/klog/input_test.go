package klog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kernlog/internal/klogparse"
	"kernlog/internal/pipeline"
)

// fakeDriver replays a fixed set of lines and then stops cleanly, or
// fails with readErr when one is set.
type fakeDriver struct {
	lines   []RawLine
	readErr error

	started bool
	stopped bool
}

func (d *fakeDriver) Start() error { d.started = true; return nil }

func (d *fakeDriver) Read(ctx context.Context) (RawLine, error) {
	if err := ctx.Err(); err != nil {
		return RawLine{}, err
	}
	if len(d.lines) == 0 {
		if d.readErr != nil {
			return RawLine{}, d.readErr
		}
		return RawLine{}, ErrDriverClosed
	}
	line := d.lines[0]
	d.lines = d.lines[1:]
	return line, nil
}

func (d *fakeDriver) Stop() error { d.stopped = true; return nil }

// blockingDriver never produces a line; Read only returns on cancel.
type blockingDriver struct{ stopped bool }

func (d *blockingDriver) Start() error { return nil }

func (d *blockingDriver) Read(ctx context.Context) (RawLine, error) {
	<-ctx.Done()
	return RawLine{}, ctx.Err()
}

func (d *blockingDriver) Stop() error { d.stopped = true; return nil }

type captureSubmitter struct {
	msgs []pipeline.Message
	err  error
}

func (c *captureSubmitter) Submit(m pipeline.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func rawLines(lines ...string) []RawLine {
	out := make([]RawLine, len(lines))
	for i, l := range lines {
		out[i] = RawLine{Data: []byte(l)}
	}
	return out
}

func runInput(t *testing.T, cfg Config, drv Driver) *captureSubmitter {
	t.Helper()
	q := &captureSubmitter{}
	in := New(Options{ID: "test", Config: cfg, Driver: drv, Hostname: "host1"})
	if err := in.Run(context.Background(), q); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return q
}

func TestRunResolvesPriorities(t *testing.T) {
	drv := &fakeDriver{lines: rawLines(
		"<6>usb 1-1: new device",   // kernel PRI on the line
		"<4><134>forwarded warning", // relayed line with a secondary PRI
		"plain text line",          // no PRI at all
	)}
	q := runInput(t, Config{PermitNonKernel: true, ConsoleLogLevel: -1}, drv)

	if len(q.msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(q.msgs))
	}

	want := []struct {
		facility, severity int
		body               string
	}{
		{0, 6, "usb 1-1: new device"},
		{16, 6, "forwarded warning"},
		{0, 6, "plain text line"},
	}
	for i, w := range want {
		m := q.msgs[i]
		if m.Facility != w.facility || m.Severity != w.severity || string(m.Raw) != w.body {
			t.Errorf("msg %d = fac %d sev %d body %q, want fac %d sev %d body %q",
				i, m.Facility, m.Severity, m.Raw, w.facility, w.severity, w.body)
		}
	}

	if !drv.started || !drv.stopped {
		t.Errorf("driver started/stopped = %v/%v, want true/true", drv.started, drv.stopped)
	}
}

func TestRunMessageIdentity(t *testing.T) {
	drv := &fakeDriver{lines: rawLines("<6>hello")}
	q := runInput(t, Config{ConsoleLogLevel: -1}, drv)

	if len(q.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(q.msgs))
	}
	m := q.msgs[0]
	if m.Hostname != "host1" {
		t.Errorf("Hostname = %q, want host1", m.Hostname)
	}
	if m.HostIP != "127.0.0.1" {
		t.Errorf("HostIP = %q, want 127.0.0.1", m.HostIP)
	}
	if m.InputName != "imklog" {
		t.Errorf("InputName = %q, want imklog", m.InputName)
	}
	if m.Tag != "kernel:" {
		t.Errorf("Tag = %q, want kernel:", m.Tag)
	}
	if !m.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero (queue assigns)", m.Timestamp)
	}
}

func TestRunFacilityFilter(t *testing.T) {
	lines := []string{"<134>user message", "<6>kernel message"}

	drv := &fakeDriver{lines: rawLines(lines...)}
	q := runInput(t, Config{ConsoleLogLevel: -1}, drv)
	if len(q.msgs) != 1 || string(q.msgs[0].Raw) != "kernel message" {
		t.Fatalf("filtered run: got %d messages %v, want only the kernel one", len(q.msgs), q.msgs)
	}

	drv = &fakeDriver{lines: rawLines(lines...)}
	q = runInput(t, Config{PermitNonKernel: true, ConsoleLogLevel: -1}, drv)
	if len(q.msgs) != 2 {
		t.Fatalf("permissive run: got %d messages, want 2", len(q.msgs))
	}
}

func TestRunSkipsEmptyLines(t *testing.T) {
	drv := &fakeDriver{lines: rawLines("", "<6>only this")}
	q := runInput(t, Config{ConsoleLogLevel: -1}, drv)
	if len(q.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(q.msgs))
	}
}

func TestRunKernelStamp(t *testing.T) {
	boot := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	drv := &fakeDriver{lines: rawLines("<6>[   12.345678] timer fired")}
	q := &captureSubmitter{}
	in := New(Options{
		Config: Config{ParseKernelStamp: true, ConsoleLogLevel: -1},
		Driver: drv, Hostname: "host1",
	})
	in.boot = boot
	if err := in.Run(context.Background(), q); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(q.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(q.msgs))
	}
	m := q.msgs[0]
	wantStamp := boot.Add(12*time.Second + 345678*time.Microsecond)
	if !m.Timestamp.Equal(wantStamp) {
		t.Errorf("Timestamp = %v, want %v", m.Timestamp, wantStamp)
	}
	if string(m.Raw) != "timer fired" {
		t.Errorf("Raw = %q, want stamp stripped", m.Raw)
	}
}

func TestRunKeepKernelStamp(t *testing.T) {
	drv := &fakeDriver{lines: rawLines("<6>[   12.345678] timer fired")}
	q := &captureSubmitter{}
	in := New(Options{
		Config: Config{ParseKernelStamp: true, KeepKernelStamp: true, ConsoleLogLevel: -1},
		Driver: drv, Hostname: "host1",
	})
	in.boot = time.Now()
	if err := in.Run(context.Background(), q); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(q.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(q.msgs))
	}
	if got := string(q.msgs[0].Raw); got != "[   12.345678] timer fired" {
		t.Errorf("Raw = %q, want stamp kept", got)
	}
}

func TestRunDriverStampWins(t *testing.T) {
	stamp := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	drv := &fakeDriver{lines: []RawLine{{Data: []byte("<6>already stamped"), Stamp: stamp}}}
	q := runInput(t, Config{ConsoleLogLevel: -1}, drv)

	if len(q.msgs) != 1 || !q.msgs[0].Timestamp.Equal(stamp) {
		t.Fatalf("Timestamp = %v, want driver stamp %v", q.msgs[0].Timestamp, stamp)
	}
}

func TestRunRateLimit(t *testing.T) {
	drv := &fakeDriver{lines: rawLines(
		"<6>one", "<6>two", "<6>three", "<6>four", "<6>five",
	)}
	cfg := Config{ConsoleLogLevel: -1, RateInterval: time.Hour, RateBurst: 2}
	q := runInput(t, cfg, drv)

	if len(q.msgs) != 2 {
		t.Fatalf("got %d messages, want burst of 2", len(q.msgs))
	}
}

func TestRunDriverError(t *testing.T) {
	boom := errors.New("boom")
	drv := &fakeDriver{lines: rawLines("<6>one"), readErr: boom}
	q := &captureSubmitter{}
	in := New(Options{Config: Config{ConsoleLogLevel: -1}, Driver: drv, Hostname: "host1"})

	err := in.Run(context.Background(), q)
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want boom", err)
	}
	if len(q.msgs) != 1 {
		t.Errorf("got %d messages before the failure, want 1", len(q.msgs))
	}
	if !drv.stopped {
		t.Error("driver not stopped after failure")
	}
}

func TestRunSubmitError(t *testing.T) {
	drv := &fakeDriver{lines: rawLines("<6>one")}
	q := &captureSubmitter{err: pipeline.ErrQueueStopped}
	in := New(Options{Config: Config{ConsoleLogLevel: -1}, Driver: drv, Hostname: "host1"})

	err := in.Run(context.Background(), q)
	if !errors.Is(err, pipeline.ErrQueueStopped) {
		t.Fatalf("Run = %v, want ErrQueueStopped", err)
	}
	if !strings.Contains(err.Error(), "submit kernel message") {
		t.Errorf("error %q lacks submit context", err)
	}
}

func TestRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	drv := &blockingDriver{}
	in := New(Options{Config: Config{ConsoleLogLevel: -1}, Driver: drv, Hostname: "host1"})

	done := make(chan error, 1)
	go func() { done <- in.Run(ctx, &captureSubmitter{}) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !drv.stopped {
		t.Error("driver not stopped after cancel")
	}
}

func TestLogInternal(t *testing.T) {
	q := &captureSubmitter{}
	in := New(Options{
		Config:   Config{InternalMsgFacility: 3, ConsoleLogLevel: -1},
		Driver:   &fakeDriver{},
		Hostname: "host1",
	})

	// Before Run: must not panic, message is dropped.
	in.LogInternal(klogparse.SeverityInfo, "too early")

	in.q = q
	in.LogInternal(klogparse.SeverityError, "driver hiccup")

	if len(q.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(q.msgs))
	}
	m := q.msgs[0]
	if m.Facility != 3 || m.Severity != klogparse.SeverityError {
		t.Errorf("facility/severity = %d/%d, want 3/%d", m.Facility, m.Severity, klogparse.SeverityError)
	}
	if string(m.Raw) != "driver hiccup" {
		t.Errorf("Raw = %q", m.Raw)
	}
	if m.InputName != "imklog" || m.Tag != "kernel:" {
		t.Errorf("identity = %q/%q, want imklog/kernel:", m.InputName, m.Tag)
	}
}

func TestRunStartsInternalMessage(t *testing.T) {
	// With no Driver override, Run wires the default driver's internal
	// logger back through the queue. Exercised here against a regular
	// file standing in for the kernel device.
	path := writeTempLines(t, "<6>from file\n")

	q := &captureSubmitter{}
	in := New(Options{
		Config:   Config{Path: path, ConsoleLogLevel: -1},
		Hostname: "host1",
	})
	if err := in.Run(context.Background(), q); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var gotStart, gotLine bool
	for _, m := range q.msgs {
		if strings.Contains(string(m.Raw), "log source "+path+" started") {
			gotStart = true
		}
		if string(m.Raw) == "from file" {
			gotLine = true
		}
	}
	if !gotStart {
		t.Error("missing source-started internal message")
	}
	if !gotLine {
		t.Error("missing kernel line from file source")
	}
}
