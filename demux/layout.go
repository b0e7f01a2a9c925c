package demux

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/grailbio/demux/encoding/bcl"
)

// SegmentType distinguishes the logical reads of a run's read structure.
type SegmentType int

const (
	// Template is a biological read (read 1 or read 2).
	Template SegmentType = iota
	// Barcode is an index read used for sample assignment.
	Barcode
)

// A Segment is one logical read span of the run's read structure: a
// contiguous range of cycles, identified by its 1-based first cycle.
type Segment struct {
	Type       SegmentType
	FirstCycle int
	NumCycles  int
}

var readStructureRE = regexp.MustCompile(`^(?:[0-9]+[TB])+$`)

// ParseReadStructure parses a compact read-structure string such as
// "150T8B8B150T": each element is a cycle count followed by T (template
// read) or B (barcode read), in instrument cycle order. A run must contain
// one or two template reads and one or two barcode reads.
func ParseReadStructure(s string) ([]Segment, error) {
	if !readStructureRE.MatchString(s) {
		return nil, configErrorf("malformed read structure %q", s)
	}
	var (
		segments  []Segment
		cycle     = 1
		templates int
		barcodes  int
	)
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != 'T' && s[i] != 'B' {
			continue
		}
		n, err := strconv.Atoi(s[start:i])
		if err != nil || n == 0 {
			return nil, configErrorf("malformed read structure %q: bad cycle count %q", s, s[start:i])
		}
		typ := Template
		if s[i] == 'B' {
			typ = Barcode
			barcodes++
		} else {
			templates++
		}
		segments = append(segments, Segment{Type: typ, FirstCycle: cycle, NumCycles: n})
		cycle += n
		start = i + 1
	}
	if templates < 1 || templates > 2 {
		return nil, configErrorf("read structure %q must have one or two template reads, got %d", s, templates)
	}
	if barcodes < 1 || barcodes > 2 {
		return nil, configErrorf("read structure %q must have one or two barcode reads, got %d", s, barcodes)
	}
	return segments, nil
}

// A Tile identifies one tile of one lane: the unit of parallel storage and
// processing.
type Tile struct {
	Lane   int
	Number int
}

// RunLayout is the immutable description of a sequencing run: its tiles,
// per-tile cluster counts, cycle count, and read structure. It is built
// once by DiscoverRunLayout and never mutated; tile workers share it
// without synchronization.
type RunLayout struct {
	// Path is the run directory.
	Path string
	// Name is the run identifier used in read names (the directory's base
	// name).
	Name string
	// Segments is the read structure, in ascending cycle order.
	Segments []Segment
	// NumCycles is the total cycle count (the sum over Segments).
	NumCycles int
	// Tiles lists every tile of the run in lane-major order.
	Tiles []Tile
	// ClusterCounts records the cluster count of each tile, as declared by
	// the tile's pass-filter file at discovery time. Cycle files that
	// disagree with it are rejected.
	ClusterCounts map[Tile]int
}

var (
	laneDirRE    = regexp.MustCompile(`^L(\d{3})$`)
	filterFileRE = regexp.MustCompile(`^s_(\d+)_(\d+)\.filter$`)
)

// laneDir returns the directory of a lane, e.g. <run>/L001.
func (l *RunLayout) laneDir(lane int) string {
	return filepath.Join(l.Path, fmt.Sprintf("L%03d", lane))
}

// BCLPath returns the cycle file of a tile, without compression suffix;
// openTileFile probes for a ".gz" variant.
func (l *RunLayout) BCLPath(t Tile, cycle int) string {
	return filepath.Join(l.laneDir(t.Lane), fmt.Sprintf("C%d.1", cycle),
		fmt.Sprintf("s_%d_%d.bcl", t.Lane, t.Number))
}

// FilterPath returns the pass-filter file of a tile.
func (l *RunLayout) FilterPath(t Tile) string {
	return filepath.Join(l.laneDir(t.Lane), fmt.Sprintf("s_%d_%d.filter", t.Lane, t.Number))
}

// BarcodeSegments returns the run's barcode segments in cycle order.
func (l *RunLayout) BarcodeSegments() []Segment {
	return l.segmentsOfType(Barcode)
}

// TemplateSegments returns the run's template segments in cycle order.
func (l *RunLayout) TemplateSegments() []Segment {
	return l.segmentsOfType(Template)
}

func (l *RunLayout) segmentsOfType(typ SegmentType) []Segment {
	var segs []Segment
	for _, seg := range l.Segments {
		if seg.Type == typ {
			segs = append(segs, seg)
		}
	}
	return segs
}

// DiscoverRunLayout builds the run layout from a run directory organized as
// lane → cycle → tile (L00X/C<cycle>.1/s_<lane>_<tile>.bcl[.gz], pass
// filters at L00X/s_<lane>_<tile>.filter) and the given read structure.
// Tile cluster counts are taken from the pass-filter headers, so discovery
// never touches a cycle file.
func DiscoverRunLayout(dir string, segments []Segment) (*RunLayout, error) {
	numCycles := 0
	for _, seg := range segments {
		numCycles += seg.NumCycles
	}
	if numCycles == 0 {
		return nil, configErrorf("empty read structure")
	}
	layout := &RunLayout{
		Path:          dir,
		Name:          filepath.Base(filepath.Clean(dir)),
		Segments:      segments,
		NumCycles:     numCycles,
		ClusterCounts: map[Tile]int{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Msg: "reading run directory " + dir, Err: err}
	}
	var lanes []int
	for _, e := range entries {
		m := laneDirRE.FindStringSubmatch(e.Name())
		if m == nil || !e.IsDir() {
			continue
		}
		lane, _ := strconv.Atoi(m[1])
		lanes = append(lanes, lane)
	}
	if len(lanes) == 0 {
		return nil, configErrorf("run directory %s contains no lane directories", dir)
	}
	sort.Ints(lanes)

	for _, lane := range lanes {
		laneDir := layout.laneDir(lane)
		for cycle := 1; cycle <= numCycles; cycle++ {
			cycleDir := filepath.Join(laneDir, fmt.Sprintf("C%d.1", cycle))
			if info, err := os.Stat(cycleDir); err != nil || !info.IsDir() {
				return nil, configErrorf("lane %d is missing cycle directory %s (read structure declares %d cycles)",
					lane, cycleDir, numCycles)
			}
		}
		laneEntries, err := os.ReadDir(laneDir)
		if err != nil {
			return nil, &ConfigError{Msg: "reading lane directory " + laneDir, Err: err}
		}
		var tiles []int
		for _, e := range laneEntries {
			m := filterFileRE.FindStringSubmatch(e.Name())
			if m == nil {
				continue
			}
			if fileLane, _ := strconv.Atoi(m[1]); fileLane != lane {
				return nil, configErrorf("filter file %s does not belong to lane %d",
					filepath.Join(laneDir, e.Name()), lane)
			}
			tile, _ := strconv.Atoi(m[2])
			tiles = append(tiles, tile)
		}
		if len(tiles) == 0 {
			return nil, configErrorf("lane %d contains no pass-filter files", lane)
		}
		sort.Ints(tiles)
		for _, number := range tiles {
			tile := Tile{Lane: lane, Number: number}
			n, err := readFilterCount(layout.FilterPath(tile))
			if err != nil {
				return nil, &FormatError{Lane: lane, Tile: number, Msg: "reading pass-filter header", Err: err}
			}
			layout.Tiles = append(layout.Tiles, tile)
			layout.ClusterCounts[tile] = n
		}
	}
	return layout, nil
}

func readFilterCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() // nolint: errcheck
	return bcl.ReadFilterHeader(f)
}
