package toaster

import "fmt"

// WarnMode controls what happens when the service raises a warning.
type WarnMode string

const (
	WarnIgnore WarnMode = "ignore" // drop silently
	WarnOnce   WarnMode = "once"   // log each distinct message once
	WarnAlways WarnMode = "always" // log every occurrence
	WarnError  WarnMode = "error"  // escalate to an error
)

// ParseWarnMode validates a configured warning-mode string.
func ParseWarnMode(s string) (WarnMode, error) {
	switch m := WarnMode(s); m {
	case WarnIgnore, WarnOnce, WarnAlways, WarnError:
		return m, nil
	default:
		return "", fmt.Errorf("%w: warning mode %q", ErrUnrecognised, s)
	}
}

// Warner dispatches warnings according to the configured mode.
// Warnings never abort unless the mode is "error".
type Warner struct {
	mode   WarnMode
	logger Logger
	seen   map[string]bool
}

func NewWarner(mode WarnMode, logger Logger) *Warner {
	return &Warner{mode: mode, logger: logger, seen: make(map[string]bool)}
}

// Warnf raises a warning. The returned error is nil except in "error"
// mode, where the warning itself becomes the error.
func (w *Warner) Warnf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch w.mode {
	case WarnIgnore:
	case WarnOnce:
		if !w.seen[msg] {
			w.seen[msg] = true
			w.logger.Warn(msg)
		}
	case WarnAlways:
		w.logger.Warn(msg)
	case WarnError:
		return fmt.Errorf("warning escalated: %s", msg)
	}
	return nil
}
