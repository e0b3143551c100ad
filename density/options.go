package density

import "log/slog"

const (
	// DefaultNeighborhood is the number of neighbours averaged per vector.
	DefaultNeighborhood = 10
	// DefaultBins is the number of histogram bins.
	DefaultBins = 100
)

type options struct {
	neighborhood int
	bins         int
	logger       *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithNeighborhood sets the number of nearest neighbours, excluding the
// vector itself, whose distances are averaged.
func WithNeighborhood(k int) Option {
	return func(o *options) { o.neighborhood = k }
}

// WithBins sets the number of equal-width histogram bins.
func WithBins(n int) Option {
	return func(o *options) { o.bins = n }
}

// WithLogger sets the logger for progress and accuracy messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		neighborhood: DefaultNeighborhood,
		bins:         DefaultBins,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
