package demux

import (
	"math/rand"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, samples []Sample, maxMismatches int) *IndexTable {
	t.Helper()
	table, err := NewIndexTable(samples, maxMismatches)
	require.NoError(t, err)
	return table
}

func TestMatchScenario(t *testing.T) {
	// Two samples one mismatch apart, threshold 1.
	table := mustTable(t, []Sample{
		{ID: "SampleA", Index1: "ACGTACGT", MaxMismatches: -1},
		{ID: "SampleB", Index1: "ACGTACGA", MaxMismatches: -1},
	}, 1)

	expect.EQ(t, table.Match([]byte("ACGTACGT"), nil),
		MatchResult{Status: Assigned, Sample: "SampleA", Mismatches: 0})
	expect.EQ(t, table.Match([]byte("ACGTACGA"), nil),
		MatchResult{Status: Assigned, Sample: "SampleB", Mismatches: 0})
	// Distance 1 from both entries: a tie within threshold is ambiguous,
	// never arbitrarily broken.
	expect.EQ(t, table.Match([]byte("ACGTACGC"), nil), MatchResult{Status: Ambiguous})
	expect.EQ(t, table.Match([]byte("TTTTTTTT"), nil), MatchResult{Status: NoMatch})
}

func TestMatchExactAlwaysAssigns(t *testing.T) {
	// An exact hit assigns regardless of threshold, even zero.
	table := mustTable(t, []Sample{
		{ID: "S1", Index1: "AAAATTTT", MaxMismatches: -1},
		{ID: "S2", Index1: "CCCCGGGG", MaxMismatches: -1},
	}, 0)
	expect.EQ(t, table.Match([]byte("AAAATTTT"), nil),
		MatchResult{Status: Assigned, Sample: "S1", Mismatches: 0})
	expect.EQ(t, table.Match([]byte("AAAATTTA"), nil), MatchResult{Status: NoMatch})
}

func TestMatchThresholdBoundary(t *testing.T) {
	// Distance exactly equal to the threshold assigns when unique...
	table := mustTable(t, []Sample{
		{ID: "S1", Index1: "AAAAAAAA", MaxMismatches: -1},
		{ID: "S2", Index1: "TTTTTTTT", MaxMismatches: -1},
	}, 2)
	expect.EQ(t, table.Match([]byte("AAAAAATT"), nil),
		MatchResult{Status: Assigned, Sample: "S1", Mismatches: 2})
	// ...and one past it does not.
	expect.EQ(t, table.Match([]byte("AAAAATTT"), nil), MatchResult{Status: NoMatch})

	// Equidistant from two entries at exactly the threshold: ambiguous.
	table = mustTable(t, []Sample{
		{ID: "S1", Index1: "AAAA", MaxMismatches: -1},
		{ID: "S2", Index1: "AATT", MaxMismatches: -1},
	}, 1)
	expect.EQ(t, table.Match([]byte("AAAT"), nil), MatchResult{Status: Ambiguous})
}

func TestMatchNoCallCountsAsMismatch(t *testing.T) {
	table := mustTable(t, []Sample{
		{ID: "S1", Index1: "ACGTACGT", MaxMismatches: -1},
		{ID: "S2", Index1: "TGCATGCA", MaxMismatches: -1},
	}, 2)
	expect.EQ(t, table.Match([]byte("ACGTACNN"), nil),
		MatchResult{Status: Assigned, Sample: "S1", Mismatches: 2})
	expect.EQ(t, table.Match([]byte("ACGNNNNN"), nil), MatchResult{Status: NoMatch})
}

func TestMatchDefaultThreshold(t *testing.T) {
	// Negative threshold selects ⌊length/4⌋ = 2 for 8-base indexes.
	table := mustTable(t, []Sample{
		{ID: "S1", Index1: "AAAAAAAA", MaxMismatches: -1},
		{ID: "S2", Index1: "TTTTTTTT", MaxMismatches: -1},
	}, -1)
	expect.EQ(t, table.Match([]byte("AAAAAACC"), nil),
		MatchResult{Status: Assigned, Sample: "S1", Mismatches: 2})
	expect.EQ(t, table.Match([]byte("AAAAACCC"), nil), MatchResult{Status: NoMatch})
}

func TestMatchPerSampleOverride(t *testing.T) {
	// S1 tolerates no mismatches at all; S2 uses the run budget.
	table := mustTable(t, []Sample{
		{ID: "S1", Index1: "AAAAAAAA", MaxMismatches: 0},
		{ID: "S2", Index1: "TTTTTTTT", MaxMismatches: -1},
	}, 2)
	expect.EQ(t, table.Match([]byte("AAAAAAAC"), nil), MatchResult{Status: NoMatch})
	expect.EQ(t, table.Match([]byte("TTTTTTTC"), nil),
		MatchResult{Status: Assigned, Sample: "S2", Mismatches: 1})
}

func TestMatchDualIndex(t *testing.T) {
	// S1 and S2 share index1 and are distinguished by index2 alone.
	table := mustTable(t, []Sample{
		{ID: "S1", Index1: "AAAAAAAA", Index2: "CCCCCCCC", MaxMismatches: -1},
		{ID: "S2", Index1: "AAAAAAAA", Index2: "GGGGGGGG", MaxMismatches: -1},
		{ID: "S3", Index1: "TTTTTTTT", Index2: "CCCCCCCC", MaxMismatches: -1},
	}, 1)

	expect.EQ(t, table.Match([]byte("AAAAAAAA"), []byte("CCCCCCCC")),
		MatchResult{Status: Assigned, Sample: "S1", Mismatches: 0})
	expect.EQ(t, table.Match([]byte("AAAAAAAT"), []byte("GGGGGGGC")),
		MatchResult{Status: Assigned, Sample: "S2", Mismatches: 2})
	// Both indexes resolve, but the pair never co-occurs in the sheet.
	expect.EQ(t, table.Match([]byte("TTTTTTTT"), []byte("GGGGGGGG")),
		MatchResult{Status: NoMatch})
	// A second index nowhere near any entry is a no-match even though the
	// first resolves cleanly.
	expect.EQ(t, table.Match([]byte("AAAAAAAA"), []byte("TATATATA")),
		MatchResult{Status: NoMatch})
}

func TestMatchLengthMismatch(t *testing.T) {
	table := mustTable(t, []Sample{
		{ID: "S1", Index1: "ACGTACGT", MaxMismatches: -1},
	}, 1)
	expect.EQ(t, table.Match([]byte("ACGT"), nil), MatchResult{Status: NoMatch})
	expect.EQ(t, table.Match([]byte("ACGTACGT"), []byte("ACGT")), MatchResult{Status: NoMatch})
}

// Permuting sample-sheet row order never changes any cluster's result.
func TestMatchPermutationSymmetry(t *testing.T) {
	samples := []Sample{
		{ID: "S1", Index1: "ACGTACGT", MaxMismatches: -1},
		{ID: "S2", Index1: "ACGTACGA", MaxMismatches: -1},
		{ID: "S3", Index1: "TTTTACGT", MaxMismatches: -1},
		{ID: "S4", Index1: "GGGGCCCC", MaxMismatches: -1},
	}
	candidates := [][]byte{
		[]byte("ACGTACGT"), []byte("ACGTACGC"), []byte("TTTTACGG"),
		[]byte("GGGGCCCC"), []byte("CCCCCCCC"), []byte("ACGTANNT"),
	}
	reference := mustTable(t, samples, 1)
	want := make([]MatchResult, len(candidates))
	for i, c := range candidates {
		want[i] = reference.Match(c, nil)
	}

	rng := rand.New(rand.NewSource(0))
	for trial := 0; trial < 20; trial++ {
		perm := append([]Sample(nil), samples...)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		table := mustTable(t, perm, 1)
		for i, c := range candidates {
			expect.EQ(t, table.Match(c, nil), want[i])
		}
	}
}

func TestNewIndexTableErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		samples []Sample
	}{
		{"duplicate combination", []Sample{
			{ID: "S1", Index1: "ACGT", MaxMismatches: -1},
			{ID: "S2", Index1: "ACGT", MaxMismatches: -1},
		}},
		{"duplicate dual combination", []Sample{
			{ID: "S1", Index1: "ACGT", Index2: "TTTT", MaxMismatches: -1},
			{ID: "S2", Index1: "ACGT", Index2: "TTTT", MaxMismatches: -1},
		}},
		{"invalid alphabet", []Sample{
			{ID: "S1", Index1: "ACGX", MaxMismatches: -1},
		}},
		{"inconsistent lengths", []Sample{
			{ID: "S1", Index1: "ACGT", MaxMismatches: -1},
			{ID: "S2", Index1: "ACGTAC", MaxMismatches: -1},
		}},
		{"index2 for only some samples", []Sample{
			{ID: "S1", Index1: "ACGT", Index2: "TTTT", MaxMismatches: -1},
			{ID: "S2", Index1: "TTTT", MaxMismatches: -1},
		}},
		{"reserved identifier", []Sample{
			{ID: Undetermined, Index1: "ACGT", MaxMismatches: -1},
		}},
		{"empty", nil},
	} {
		_, err := NewIndexTable(tc.samples, 1)
		require.Error(t, err, tc.name)
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr, tc.name)
	}
}

func TestLinearMatcher(t *testing.T) {
	m := NewLinearMatcher([]string{"AAAA", "AATT", "TTTT"})
	best, dist, second := m.Best([]byte("AAAT"))
	expect.EQ(t, []int{best, dist, second}, []int{0, 1, 1})

	best, dist, second = m.Best([]byte("TTTT"))
	expect.EQ(t, []int{best, dist, second}, []int{2, 0, 2})
}
