// Package klog implements the kernel log input: it acquires raw lines
// from an OS-specific driver, resolves each line's priority (including
// the dual-PRI case produced by relays), optionally parses the kernel's
// uptime stamp, and submits normalized messages to the queue.
//
// The input runs on a single goroutine; the driver read is the only
// suspension point and it is cancellable. Configuration is frozen
// before Run starts.
package klog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"kernlog/internal/klogparse"
	"kernlog/internal/logging"
	"kernlog/internal/pipeline"
)

const (
	// InputName identifies this input on every message it produces.
	InputName = "imklog"

	// localHostIP labels kernel messages as locally originated.
	localHostIP = "127.0.0.1"

	// kernelTag is the tag carried by every kernel-sourced message.
	kernelTag = "kernel:"
)

// defaultPri is used for lines carrying no PRI of their own. Kernel
// lines legitimately lack one; they default to kern.info.
var defaultPri = klogparse.MakePri(klogparse.FacilityKernel, klogparse.SeverityInfo)

// Options configures a kernel log input.
type Options struct {
	// ID is the input's identifier, for logging.
	ID string

	// Config is the resolved effective configuration.
	Config Config

	// Driver overrides the platform driver. Nil selects the default
	// kernel log device driver.
	Driver Driver

	// Hostname overrides the local host name. Empty uses os.Hostname.
	Hostname string

	// Logger for structured logging.
	Logger *slog.Logger
}

// Input is the kernel log ingestion loop. It implements pipeline.Input.
type Input struct {
	id       string
	cfg      Config
	driver   Driver
	limiter  *rate.Limiter
	hostname string
	logger   *slog.Logger

	// Set at Run; the loop and the driver's internal-message callback
	// run on the same goroutine after that.
	q       pipeline.Submitter
	boot    time.Time
	limited bool
}

// New creates a kernel log input.
func New(opts Options) *Input {
	logger := logging.Default(opts.Logger).With("component", "ingester", "type", "klog")

	host := opts.Hostname
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "localhost"
		}
		host = h
	}

	in := &Input{
		id:       opts.ID,
		cfg:      opts.Config,
		hostname: host,
		logger:   logger,
	}

	if opts.Config.RateInterval > 0 {
		burst := opts.Config.RateBurst
		if burst < 1 {
			burst = 1
		}
		in.limiter = rate.NewLimiter(rate.Every(opts.Config.RateInterval), burst)
	}

	in.driver = opts.Driver
	if in.driver == nil {
		in.driver = newKmsgDriver(opts.Config, logger, in.LogInternal)
	}

	return in
}

// Run implements pipeline.Input. It starts the driver and processes
// lines until the driver stops cleanly, ctx is cancelled, or an
// unrecoverable error occurs. Each cycle is atomic: a line is fully
// processed and submitted, or fully discarded, before the next read.
func (in *Input) Run(ctx context.Context, q pipeline.Submitter) error {
	in.q = q

	if in.cfg.ParseKernelStamp && in.boot.IsZero() {
		bt, err := bootTime()
		if err != nil {
			in.logger.Warn("kernel timestamps unavailable", "error", err)
		} else {
			in.boot = bt
		}
	}

	if err := in.driver.Start(); err != nil {
		return fmt.Errorf("start kernel log driver: %w", err)
	}
	defer func() {
		if err := in.driver.Stop(); err != nil {
			in.logger.Warn("stopping kernel log driver", "error", err)
		}
	}()

	in.logger.Info("kernel log input running", "id", in.id)

	for {
		line, err := in.driver.Read(ctx)
		switch {
		case errors.Is(err, ErrDriverClosed):
			in.logger.Info("kernel log source closed")
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return err
		}

		if err := in.process(line); err != nil {
			return err
		}
	}
}

// process runs one line through rate limiting, priority resolution,
// kernel timestamp parsing, and the facility filter. It submits exactly
// one message or discards the line; nothing is retried.
func (in *Input) process(line RawLine) error {
	if len(line.Data) == 0 {
		return nil
	}

	if in.limiter != nil && !in.limiter.Allow() {
		if !in.limited {
			in.logger.Debug("rate limit reached, dropping kernel messages")
			in.limited = true
		}
		return nil
	}
	in.limited = false

	pri, body := klogparse.ResolvePriority(line.Data, defaultPri)

	stamp := line.Stamp
	if in.cfg.ParseKernelStamp && stamp.IsZero() && !in.boot.IsZero() {
		if d, rest, ok := klogparse.ParseKernelStamp(body); ok {
			stamp = in.boot.Add(d)
			if !in.cfg.KeepKernelStamp {
				body = rest
			}
		}
	}

	// Policy drop, not an error.
	if !in.cfg.PermitNonKernel && klogparse.Facility(pri) != klogparse.FacilityKernel {
		return nil
	}

	return in.enqueue(pri, body, stamp)
}

// enqueue builds the normalized message and hands it to the queue. A
// zero stamp lets the queue assign the current time itself.
func (in *Input) enqueue(pri int, body []byte, stamp time.Time) error {
	msg := pipeline.Message{
		Timestamp: stamp,
		Hostname:  in.hostname,
		HostIP:    localHostIP,
		InputName: InputName,
		Tag:       kernelTag,
		Facility:  klogparse.Facility(pri),
		Severity:  klogparse.Severity(pri),
		Raw:       body,
	}
	if err := in.q.Submit(msg); err != nil {
		return fmt.Errorf("submit kernel message: %w", err)
	}
	return nil
}

// LogInternal submits one of the input's (or its driver's) own
// diagnostics through the queue at the configured internal-message
// facility. Internal messages are operator-facing and not subject to
// the non-kernel facility filter.
func (in *Input) LogInternal(severity int, text string) {
	if in.q == nil {
		in.logger.Debug("internal message before queue attach", "text", text)
		return
	}
	err := in.q.Submit(pipeline.Message{
		Hostname:  in.hostname,
		HostIP:    localHostIP,
		InputName: InputName,
		Tag:       kernelTag,
		Facility:  in.cfg.InternalMsgFacility,
		Severity:  severity,
		Raw:       []byte(text),
	})
	if err != nil {
		in.logger.Debug("internal message dropped", "error", err)
	}
}
