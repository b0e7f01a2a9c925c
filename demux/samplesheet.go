package demux

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// A Sample is one sample-sheet row: a sample identifier paired with one or
// two index sequences and an optional per-sample mismatch override.
type Sample struct {
	ID     string
	Index1 string
	// Index2 is empty for single-index runs.
	Index2 string
	// MaxMismatches overrides the run-level mismatch budget for this sample
	// when non-negative.
	MaxMismatches int
}

// ReadSampleSheet parses CSV rows of
//
//	sample_id,index[,index2[,mismatches]]
//
// Lines starting with "#" are comments and an optional header row (first
// field "sample_id") is skipped. Identifiers must be unique and usable as
// output path components. Index validation (alphabet, lengths, duplicate
// combinations) happens in NewIndexTable.
func ReadSampleSheet(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var samples []Sample
	seen := map[string]bool{}
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ConfigError{Msg: "sample sheet", Err: errors.Wrap(err, "parsing CSV")}
		}
		line++
		if line == 1 && strings.EqualFold(record[0], "sample_id") {
			continue
		}
		if len(record) < 2 || len(record) > 4 {
			return nil, configErrorf("sample sheet line %d: expected 2 to 4 fields, got %d", line, len(record))
		}
		s := Sample{
			ID:            strings.TrimSpace(record[0]),
			Index1:        strings.ToUpper(strings.TrimSpace(record[1])),
			MaxMismatches: -1,
		}
		if len(record) >= 3 {
			s.Index2 = strings.ToUpper(strings.TrimSpace(record[2]))
		}
		if len(record) == 4 && record[3] != "" {
			mm, err := strconv.Atoi(strings.TrimSpace(record[3]))
			if err != nil || mm < 0 {
				return nil, configErrorf("sample sheet line %d: bad mismatch override %q", line, record[3])
			}
			s.MaxMismatches = mm
		}
		if err := validateSampleID(s.ID); err != nil {
			return nil, &ConfigError{Msg: "sample sheet line " + strconv.Itoa(line), Err: err}
		}
		if seen[s.ID] {
			return nil, configErrorf("sample sheet line %d: duplicate sample identifier %q", line, s.ID)
		}
		seen[s.ID] = true
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, configErrorf("sample sheet contains no samples")
	}
	return samples, nil
}

// validateSampleID rejects identifiers that cannot be used as output path
// components.
func validateSampleID(id string) error {
	switch {
	case id == "":
		return errors.New("empty sample identifier")
	case id == "." || id == "..":
		return errors.Errorf("sample identifier %q is not a valid path component", id)
	case strings.ContainsAny(id, "/\\"):
		return errors.Errorf("sample identifier %q contains a path separator", id)
	case id == Undetermined:
		return errors.Errorf("sample identifier %q is reserved for unassigned reads", id)
	}
	return nil
}
