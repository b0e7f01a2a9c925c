package demux

import "fmt"

// ConfigError reports a malformed or contradictory sample sheet or run
// layout. It is raised before any tile processing starts and is not
// recoverable.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// FormatError reports corrupt, truncated, or size-mismatched binary run
// input. It aborts the run: partial demultiplexing results are never
// delivered as if complete. Cycle is zero for per-tile files that are not
// cycle-specific (the pass filter).
type FormatError struct {
	Lane  int
	Tile  int
	Cycle int
	Msg   string
	Err   error
}

func (e *FormatError) Error() string {
	s := fmt.Sprintf("lane %d tile %d", e.Lane, e.Tile)
	if e.Cycle > 0 {
		s += fmt.Sprintf(" cycle %d", e.Cycle)
	}
	s += ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FormatError) Unwrap() error { return e.Err }

// ResourceError reports a failure to acquire a resource needed to process a
// tile, such as opening one of its files. The tile is retried once with
// backoff before the error escalates to a run failure.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *ResourceError) Unwrap() error { return e.Err }
