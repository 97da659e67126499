package tracehook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithSteps restricts the extension to record only the listed steps.
// By default every step is recorded. Unknown steps are silently ignored.
func WithSteps(steps ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(steps))
		for _, s := range steps {
			e.enabled[s] = true
		}
	}
}

// WithLogger sets the logger used by the default recorder and for
// reporting recorder errors.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}
