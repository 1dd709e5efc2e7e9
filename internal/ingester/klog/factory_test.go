package klog

import (
	"testing"

	"github.com/google/uuid"

	"kernlog/internal/logging"
)

func TestFactoryDefaults(t *testing.T) {
	factory := NewFactory()

	in, err := factory(uuid.New(), nil, logging.Discard())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	ki, ok := in.(*Input)
	if !ok {
		t.Fatalf("factory returned %T, want *Input", in)
	}
	if ki.cfg != DefaultConfig() {
		t.Errorf("config = %+v, want defaults", ki.cfg)
	}
	if ki.limiter != nil {
		t.Error("rate limiter active by default")
	}
}

func TestFactoryParams(t *testing.T) {
	factory := NewFactory()

	params := map[string]string{
		"logpath":                 "/dev/kmsg",
		"permitnonkernelfacility": "on",
		"ratelimit_interval":      "1s",
		"ratelimit_burst":         "10",
	}
	in, err := factory(uuid.New(), params, logging.Discard())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	ki := in.(*Input)
	if ki.cfg.Path != "/dev/kmsg" || !ki.cfg.PermitNonKernel {
		t.Errorf("config = %+v", ki.cfg)
	}
	if ki.limiter == nil {
		t.Error("rate limiter not configured")
	}
}

func TestFactoryBadParams(t *testing.T) {
	factory := NewFactory()

	if _, err := factory(uuid.New(), map[string]string{"bogus": "x"}, logging.Discard()); err == nil {
		t.Error("unknown parameter accepted")
	}
}
