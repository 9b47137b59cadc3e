package disc

import (
	"github.com/bgrewell/disc-kit/pkg/consts"
	"github.com/go-logr/logr"
)

// Options represents the options for opening a disc image.
type Options struct {
	preference        *Format
	usePathTable      bool
	continuationLimit int
	logger            logr.Logger
}

func defaultOptions() Options {
	return Options{
		continuationLimit: consts.SUSP_DEFAULT_CONTINUATION_LIMIT,
		logger:            logr.Discard(),
	}
}

// Option represents a function that modifies the Options.
type Option func(*Options)

// WithPreference sets the format the disc should be treated as when it is
// available. An unavailable preference falls back to the best available
// format with a diagnostic.
func WithPreference(format Format) Option {
	return func(o *Options) {
		o.preference = &format
	}
}

// WithLogger sets the sink for diagnostics. Without it, messages are
// dropped.
func WithLogger(logger logr.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// WithPathTableLookup makes ISO9660-family lookups resolve through the path
// table, the way Windows drivers do, instead of walking directory records
// from the root.
func WithPathTableLookup(enabled bool) Option {
	return func(o *Options) {
		o.usePathTable = enabled
	}
}

// WithContinuationLimit bounds the number of SUSP continuation areas
// followed per directory record, guarding reads on malformed images.
func WithContinuationLimit(limit int) Option {
	return func(o *Options) {
		o.continuationLimit = limit
	}
}
