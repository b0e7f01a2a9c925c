package demux

import "time"

type Opts struct {
	// MaxMismatches is the per-index-read mismatch budget when matching a
	// cluster's barcode against the sample sheet. A negative value selects
	// the classic length-scaled default, ⌊index length / 4⌋ per index read.
	MaxMismatches int
	// Parallelism bounds the tile worker pool. Zero means one worker per
	// CPU.
	Parallelism int
	// RetryBackoff is the delay before the single retry of a tile that
	// failed with a ResourceError.
	RetryBackoff time.Duration
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	MaxMismatches: -1,
	Parallelism:   0,
	RetryBackoff:  time.Second,
}
