package demux

// Stats represents run-level counters. For every tile, Clusters equals
// Filtered + Assigned + Ambiguous + NoMatch: each cluster either fails the
// pass filter or yields exactly one match result.
type Stats struct {
	// Clusters is the total number of clusters seen.
	Clusters int
	// Filtered is the number of clusters excluded by the instrument's pass
	// filter. They never produce a match result and are counted separately
	// from the unassigned populations below.
	Filtered int
	// Assigned is the number of clusters assigned to a sample.
	Assigned int
	// Ambiguous is the number of clusters whose barcode tied between two or
	// more samples within the mismatch budget.
	Ambiguous int
	// NoMatch is the number of clusters whose barcode was within the
	// mismatch budget of no sample.
	NoMatch int
	// PerSample counts assigned clusters per sample-sheet row.
	PerSample []int
}

// Merge adds the field values of the two Stats objects and creates new
// Stats. Tile workers accumulate locally and merge at the end of the run.
func (s Stats) Merge(o Stats) Stats {
	s.Clusters += o.Clusters
	s.Filtered += o.Filtered
	s.Assigned += o.Assigned
	s.Ambiguous += o.Ambiguous
	s.NoMatch += o.NoMatch
	if len(o.PerSample) > len(s.PerSample) {
		grown := make([]int, len(o.PerSample))
		copy(grown, s.PerSample)
		s.PerSample = grown
	} else if len(s.PerSample) > 0 {
		// Merge must not alias the receiver's slice.
		s.PerSample = append([]int(nil), s.PerSample...)
	}
	for i, n := range o.PerSample {
		s.PerSample[i] += n
	}
	return s
}
