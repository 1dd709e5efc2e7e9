package klog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kernlog/internal/klogparse"
)

var (
	// ErrObsoleteDirective marks legacy directives that have gone away.
	// They are recognized so the operator gets a useful report instead
	// of an "unknown directive" error.
	ErrObsoleteDirective = errors.New("directive has gone away")

	// ErrLegacyDisabled is returned for legacy directives once the
	// structured configuration surface has been used.
	ErrLegacyDisabled = errors.New("legacy directives disabled by structured configuration")
)

// Config is the effective kernel-log input configuration. It is
// resolved once by a Loader before the input starts and read-only
// afterwards.
type Config struct {
	// Path overrides the driver's default log source. Empty means
	// unset: the driver picks its platform default.
	Path string

	// PermitNonKernel allows messages whose resolved facility is not
	// the kernel facility. When false such messages are silently
	// dropped.
	PermitNonKernel bool

	// ParseKernelStamp enables parsing of the kernel's [sec.usec]
	// uptime stamp for the message time; KeepKernelStamp leaves the
	// stamp text in the message body after parsing it.
	ParseKernelStamp bool
	KeepKernelStamp  bool

	// InternalMsgFacility is the facility used for the input's own
	// diagnostic messages.
	InternalMsgFacility int

	// ConsoleLogLevel is applied to the kernel console at driver start
	// on platforms that support it. -1 means unset.
	ConsoleLogLevel int

	// RateInterval/RateBurst bound the accepted message rate. A zero
	// interval disables rate limiting.
	RateInterval time.Duration
	RateBurst    int
}

// DefaultConfig returns the compiled-in defaults.
func DefaultConfig() Config {
	return Config{
		InternalMsgFacility: klogparse.FacilityKernel,
		ConsoleLogLevel:     -1,
	}
}

// Loader accumulates configuration from the two mutually exclusive
// surfaces — legacy line directives and structured parameters — and
// resolves them into one effective Config.
//
// The structured surface wins: once ApplyParams has been called, further
// legacy directives are refused and whatever the legacy surface had
// accumulated is ignored by Resolve.
type Loader struct {
	legacy     Config
	structured Config
	viaParams  bool
}

// NewLoader returns a Loader with both surfaces at compiled-in defaults.
func NewLoader() *Loader {
	return &Loader{
		legacy:     DefaultConfig(),
		structured: DefaultConfig(),
	}
}

// ApplyDirective processes one legacy directive with its scalar
// argument. Obsolete directives are refused with ErrObsoleteDirective;
// the caller decides whether that aborts the load or is merely reported.
func (l *Loader) ApplyDirective(name, arg string) error {
	switch strings.ToLower(name) {
	case "klogsymbollookup", "klogsymbolstwice", "klogusesyscallinterface", "debugprintkernelsymbols":
		return fmt.Errorf("%w: %s", ErrObsoleteDirective, name)

	case "resetconfigvariables":
		// Resets the legacy surface only; structured values are
		// untouched.
		l.legacy = DefaultConfig()
		return nil
	}

	if l.viaParams {
		return fmt.Errorf("%w: %s", ErrLegacyDisabled, name)
	}

	switch strings.ToLower(name) {
	case "klogpath":
		l.legacy.Path = arg
	case "klogpermitnonkernelfacility":
		b, err := parseBool(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		l.legacy.PermitNonKernel = b
	case "klogconsoleloglevel":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%s: invalid level %q", name, arg)
		}
		l.legacy.ConsoleLogLevel = n
	case "kloginternalmsgfacility":
		f, ok := klogparse.FacilityNumber(arg)
		if !ok {
			return fmt.Errorf("%s: unknown facility %q", name, arg)
		}
		l.legacy.InternalMsgFacility = f
	case "klogparsekerneltimestamp":
		b, err := parseBool(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		l.legacy.ParseKernelStamp = b
	case "klogkeepkerneltimestamp":
		b, err := parseBool(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		l.legacy.KeepKernelStamp = b
	default:
		return fmt.Errorf("unknown directive %q", name)
	}
	return nil
}

// ApplyParams processes the structured parameter map. Using it at all
// disables the legacy surface for this loader.
func (l *Loader) ApplyParams(params map[string]string) error {
	l.viaParams = true

	for key, val := range params {
		switch key {
		case "logpath":
			l.structured.Path = val
		case "permitnonkernelfacility":
			b, err := parseBool(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			l.structured.PermitNonKernel = b
		case "consoleloglevel":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s: invalid level %q", key, val)
			}
			l.structured.ConsoleLogLevel = n
		case "internalmsgfacility":
			f, ok := klogparse.FacilityNumber(val)
			if !ok {
				return fmt.Errorf("%s: unknown facility %q", key, val)
			}
			l.structured.InternalMsgFacility = f
		case "parsekerneltimestamp":
			b, err := parseBool(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			l.structured.ParseKernelStamp = b
		case "keepkerneltimestamp":
			b, err := parseBool(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			l.structured.KeepKernelStamp = b
		case "ratelimit_interval":
			d, err := time.ParseDuration(val)
			if err != nil || d < 0 {
				return fmt.Errorf("%s: invalid duration %q", key, val)
			}
			l.structured.RateInterval = d
		case "ratelimit_burst":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return fmt.Errorf("%s: invalid burst %q", key, val)
			}
			l.structured.RateBurst = n
		default:
			return fmt.Errorf("unknown parameter %q", key)
		}
	}
	return nil
}

// Resolve returns the effective configuration: the structured surface
// when it was used, otherwise the accumulated legacy values.
func (l *Loader) Resolve() Config {
	if l.viaParams {
		return l.structured
	}
	return l.legacy
}

// parseBool accepts the spellings the legacy directives always did.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
