// Command kernlog ingests the OS kernel log and prints the normalized
// messages to stdout.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kernlog/internal/ingester/klog"
	"kernlog/internal/logging"
	"kernlog/internal/pipeline"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "kernlog",
		Short: "Kernel log ingestion service",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest the kernel log and print normalized messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			levelName, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			directives, _ := cmd.Flags().GetStringArray("directive")
			params, _ := cmd.Flags().GetStringArray("param")
			queueSize, _ := cmd.Flags().GetInt("queue-size")

			level, err := logging.ParseLevel(levelName)
			if err != nil {
				return err
			}
			handler, err := logging.NewHandler(os.Stderr, format, level)
			if err != nil {
				return err
			}
			logger := slog.New(handler)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, directives, params, queueSize)
		},
	}

	runCmd.Flags().String("log-level", "info", "log level: debug, info, warn, or error")
	runCmd.Flags().String("log-format", "text", "log output format: text or json")
	runCmd.Flags().StringArray("directive", nil, `legacy directive as "name value" (repeatable)`)
	runCmd.Flags().StringArray("param", nil, "input parameter as key=value (repeatable)")
	runCmd.Flags().Int("queue-size", 1024, "message queue capacity")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(runCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, directives, params []string, queueSize int) error {
	in, err := buildInput(logger, directives, params)
	if err != nil {
		return err
	}

	q := pipeline.New(queueSize, logger)

	out := bufio.NewWriter(os.Stdout)
	q.AddHandler(func(m pipeline.Message) {
		out.Write(m.Raw)
		out.WriteByte('\n')
		out.Flush()
	})

	q.RegisterInput(uuid.New(), in)
	if err := q.Start(ctx); err != nil {
		return err
	}

	// Wait for a signal, or for the source to run dry when it is finite
	// (a regular file given via logpath).
	select {
	case <-ctx.Done():
	case <-q.Done():
	}
	return q.Stop()
}

// buildInput constructs the kernel log input from the command line.
// With no legacy directives the structured factory path is used;
// otherwise a loader accumulates both surfaces and resolves precedence.
func buildInput(logger *slog.Logger, directives, params []string) (pipeline.Input, error) {
	pm, err := parseParams(params)
	if err != nil {
		return nil, err
	}

	if len(directives) == 0 {
		return klog.NewFactory()(uuid.New(), pm, logger)
	}

	ld := klog.NewLoader()
	for _, d := range directives {
		name, arg, _ := strings.Cut(d, " ")
		err := ld.ApplyDirective(name, strings.TrimSpace(arg))
		switch {
		case errors.Is(err, klog.ErrObsoleteDirective):
			logger.Warn("ignoring directive", "directive", name, "error", err)
		case err != nil:
			return nil, fmt.Errorf("directive %q: %w", d, err)
		}
	}
	if len(pm) > 0 {
		if err := ld.ApplyParams(pm); err != nil {
			return nil, fmt.Errorf("klog input config: %w", err)
		}
	}

	return klog.New(klog.Options{
		ID:     uuid.NewString(),
		Config: ld.Resolve(),
		Logger: logger,
	}), nil
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q: want key=value", p)
		}
		m[k] = v
	}
	return m, nil
}
