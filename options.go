package pagevirt

import "log/slog"

type (
	// Option customizes a collection built by a [Builder].
	Option func(*options)

	options struct {
		logger   *slog.Logger
		observer Observer
	}
)

// WithLogger sets the structured logger used for fetch failures,
// evictions and lifecycle events. Logging is disabled by default.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithObserver registers an [Observer] for page events.
func WithObserver(observer Observer) Option {
	return func(opts *options) {
		opts.observer = observer
	}
}

func newOptions(optionList []Option) options {
	opts := options{
		logger:   slog.New(slog.DiscardHandler),
		observer: NoopObserver{},
	}
	for _, apply := range optionList {
		apply(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.New(slog.DiscardHandler)
	}
	if opts.observer == nil {
		opts.observer = NoopObserver{}
	}
	return opts
}
