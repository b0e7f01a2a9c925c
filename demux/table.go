package demux

import (
	"math"
	"strings"
)

// Undetermined is the reserved bucket identifier for clusters that could
// not be assigned to a sample.
const Undetermined = "Undetermined"

// MatchStatus classifies the outcome of matching one cluster's barcode
// against the index table.
type MatchStatus int

const (
	// NoMatch means no sample was within the mismatch budget, or the two
	// index reads of a dual-index run did not identify the same sample.
	NoMatch MatchStatus = iota
	// Ambiguous means two or more samples tied at the smallest distance
	// within the mismatch budget.
	Ambiguous
	// Assigned means exactly one sample was closest, within the budget.
	Assigned
)

func (s MatchStatus) String() string {
	switch s {
	case NoMatch:
		return "no-match"
	case Ambiguous:
		return "ambiguous"
	case Assigned:
		return "assigned"
	}
	return "invalid"
}

// A MatchResult tags one cluster's classification. It is never mutated
// after creation. Sample and Mismatches are meaningful only when Status is
// Assigned; Mismatches is then the total distance across index reads.
type MatchResult struct {
	Status     MatchStatus
	Sample     string
	Mismatches int
}

// A Matcher locates the sample-sheet index sequence closest to a candidate
// of equal length. Implementations must be safe for concurrent use; the
// linear scan below serves sample sheets with tens of entries, and the
// interface leaves room for a trie or partitioned-hash scheme for sheets
// with thousands.
type Matcher interface {
	// Best returns the position of the closest sequence, its Hamming
	// distance from the candidate, and the runner-up distance (a large
	// value when there is only one sequence). No-call bases in the
	// candidate count as mismatches at every position.
	Best(candidate []byte) (best, dist, second int)
}

type linearMatcher struct {
	seqs []string
}

// NewLinearMatcher returns a Matcher that scans all sequences on every
// call.
func NewLinearMatcher(seqs []string) Matcher {
	return &linearMatcher{seqs: seqs}
}

func (m *linearMatcher) Best(candidate []byte) (best, dist, second int) {
	best, dist, second = -1, math.MaxInt32, math.MaxInt32
	for i, seq := range m.seqs {
		// Counting can stop once an entry is provably worse than the
		// current runner-up.
		d := hammingDistance(seq, candidate, second)
		if d < dist {
			best, second, dist = i, dist, d
		} else if d < second {
			second = d
		}
	}
	return best, dist, second
}

// hammingDistance counts positions at which seq and candidate differ,
// stopping early once the count exceeds limit. The sample sheet contains
// only A, C, G, T, so a no-call in the candidate never compares equal.
func hammingDistance(seq string, candidate []byte, limit int) int {
	d := 0
	for i := 0; i < len(seq); i++ {
		if seq[i] != candidate[i] {
			if d++; d > limit {
				return d
			}
		}
	}
	return d
}

// IndexTable maps index sequences to samples. It is built once from the
// sample sheet, is read-only thereafter, and is shared by all tile workers
// without synchronization.
//
// Each index read position is matched independently against the distinct
// sequences appearing at that position; the winning sequence (or pair of
// winning sequences, for dual-index runs) then identifies the sample-sheet
// row. Matching a position accepts the closest sequence only if its
// distance is within the mismatch budget and strictly smaller than the
// runner-up's; a tie within the budget is ambiguous.
type IndexTable struct {
	samples []Sample
	row     map[string]int // sample ID -> sheet row

	len1, len2       int
	thresh1, thresh2 int
	uniq1, uniq2     []string
	m1, m2           Matcher

	// combo resolves a winning sequence (or pair) to a sheet row.
	combo map[string]int
}

// DefaultMismatches is the length-scaled mismatch budget used when no
// explicit threshold is configured: one mismatch per four index bases.
func DefaultMismatches(indexLen int) int { return indexLen / 4 }

// NewIndexTable builds the table from sample-sheet rows. maxMismatches is
// the per-index-read budget; a negative value selects
// DefaultMismatches(index length) per index read. NewIndexTable fails with
// a ConfigError if any index contains a character outside ACGT, index
// lengths are inconsistent within a position, or two samples share an
// index combination.
func NewIndexTable(samples []Sample, maxMismatches int) (*IndexTable, error) {
	if len(samples) == 0 {
		return nil, configErrorf("index table requires at least one sample")
	}
	t := &IndexTable{
		samples: samples,
		row:     map[string]int{},
		len1:    len(samples[0].Index1),
		len2:    len(samples[0].Index2),
		combo:   map[string]int{},
	}
	for i, s := range samples {
		if s.ID == Undetermined {
			return nil, configErrorf("sample identifier %q is reserved for unassigned reads", s.ID)
		}
		if err := validateIndex(s.ID, s.Index1); err != nil {
			return nil, err
		}
		if len(s.Index1) != t.len1 {
			return nil, configErrorf("sample %s: index %s has length %d, other samples have length %d",
				s.ID, s.Index1, len(s.Index1), t.len1)
		}
		if len(s.Index2) != t.len2 {
			return nil, configErrorf("sample %s: index2 must be present for all samples or none", s.ID)
		}
		if t.len2 > 0 {
			if err := validateIndex(s.ID, s.Index2); err != nil {
				return nil, err
			}
		}
		key := comboKey(s.Index1, s.Index2)
		if prev, ok := t.combo[key]; ok {
			return nil, configErrorf("samples %s and %s share index combination %s",
				samples[prev].ID, s.ID, key)
		}
		t.combo[key] = i
		t.row[s.ID] = i
	}

	t.uniq1 = uniqueSeqs(samples, func(s Sample) string { return s.Index1 })
	t.m1 = NewLinearMatcher(t.uniq1)
	if t.len2 > 0 {
		t.uniq2 = uniqueSeqs(samples, func(s Sample) string { return s.Index2 })
		t.m2 = NewLinearMatcher(t.uniq2)
	}

	t.thresh1 = maxMismatches
	t.thresh2 = maxMismatches
	if maxMismatches < 0 {
		t.thresh1 = DefaultMismatches(t.len1)
		t.thresh2 = DefaultMismatches(t.len2)
	}
	return t, nil
}

func validateIndex(sampleID, index string) error {
	if index == "" {
		return configErrorf("sample %s: empty index sequence", sampleID)
	}
	for i := 0; i < len(index); i++ {
		switch index[i] {
		case 'A', 'C', 'G', 'T':
		default:
			return configErrorf("sample %s: index %s contains invalid base %q", sampleID, index, index[i])
		}
	}
	return nil
}

func comboKey(index1, index2 string) string {
	if index2 == "" {
		return index1
	}
	return index1 + "+" + index2
}

func uniqueSeqs(samples []Sample, get func(Sample) string) []string {
	seen := map[string]bool{}
	var seqs []string
	for _, s := range samples {
		if seq := get(s); !seen[seq] {
			seen[seq] = true
			seqs = append(seqs, seq)
		}
	}
	return seqs
}

// Samples returns the table's rows in sample-sheet order.
func (t *IndexTable) Samples() []Sample { return t.samples }

// DualIndex reports whether the table holds two index reads per sample.
func (t *IndexTable) DualIndex() bool { return t.len2 > 0 }

// IndexLengths returns the expected candidate lengths for the two index
// read positions; the second is zero for single-index tables.
func (t *IndexTable) IndexLengths() (int, int) { return t.len1, t.len2 }

// Match classifies a cluster's index read(s). index2 must be nil for
// single-index tables and of matching length otherwise. Match is a pure
// function of its arguments and the table, and is safe to call from
// concurrent tile workers.
func (t *IndexTable) Match(index1, index2 []byte) MatchResult {
	if len(index1) != t.len1 || len(index2) != t.len2 {
		return MatchResult{Status: NoMatch}
	}
	b1, d1, s1 := t.m1.Best(index1)
	if d1 > t.thresh1 {
		return MatchResult{Status: NoMatch}
	}
	if d1 == s1 {
		return MatchResult{Status: Ambiguous}
	}
	key := t.uniq1[b1]
	total := d1
	if t.len2 > 0 {
		b2, d2, s2 := t.m2.Best(index2)
		if d2 > t.thresh2 {
			return MatchResult{Status: NoMatch}
		}
		if d2 == s2 {
			return MatchResult{Status: Ambiguous}
		}
		key = comboKey(key, t.uniq2[b2])
		total += d2
	}
	rowIdx, ok := t.combo[key]
	if !ok {
		// Both index reads resolved, but to sequences that never co-occur
		// in the sample sheet.
		return MatchResult{Status: NoMatch}
	}
	s := t.samples[rowIdx]
	if s.MaxMismatches >= 0 {
		if d1 > s.MaxMismatches {
			return MatchResult{Status: NoMatch}
		}
		if t.len2 > 0 && total-d1 > s.MaxMismatches {
			return MatchResult{Status: NoMatch}
		}
	}
	return MatchResult{Status: Assigned, Sample: s.ID, Mismatches: total}
}

// sampleRow returns the sheet row of an assigned sample ID.
func (t *IndexTable) sampleRow(id string) int { return t.row[id] }

// matchName formats a barcode for read names: "ACGT" or "ACGT+TTAA".
func matchName(index1, index2 []byte) string {
	if len(index2) == 0 {
		return string(index1)
	}
	var b strings.Builder
	b.Grow(len(index1) + 1 + len(index2))
	b.Write(index1)
	b.WriteByte('+')
	b.Write(index2)
	return b.String()
}
