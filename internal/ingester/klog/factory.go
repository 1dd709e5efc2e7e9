package klog

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"kernlog/internal/pipeline"
)

// NewFactory returns an InputFactory for kernel log inputs configured
// through the structured parameter surface.
func NewFactory() pipeline.InputFactory {
	return func(id uuid.UUID, params map[string]string, logger *slog.Logger) (pipeline.Input, error) {
		ld := NewLoader()
		if err := ld.ApplyParams(params); err != nil {
			return nil, fmt.Errorf("klog input config: %w", err)
		}
		return New(Options{
			ID:     id.String(),
			Config: ld.Resolve(),
			Logger: logger,
		}), nil
	}
}
