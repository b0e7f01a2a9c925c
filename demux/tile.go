package demux

import (
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/demux/encoding/bcl"
	"github.com/grailbio/demux/encoding/fastq"
)

// segmentBuffers holds one tile's assembled calls: per segment, seq and
// qual are fixed-stride arrays of n*NumCycles bytes. A cluster's bases for
// segment s live at [cluster*stride, cluster*stride+stride); keeping the
// cluster index explicit makes cross-cycle alignment a positional array
// join, so reordering bugs are structurally impossible.
type segmentBuffers struct {
	seg  Segment
	seq  []byte
	qual []byte
}

func (b *segmentBuffers) seqOf(cluster int) []byte {
	stride := b.seg.NumCycles
	return b.seq[cluster*stride : (cluster+1)*stride]
}

func (b *segmentBuffers) qualOf(cluster int) []byte {
	stride := b.seg.NumCycles
	return b.qual[cluster*stride : (cluster+1)*stride]
}

// processTile runs the full per-tile pipeline: decode every cycle file,
// assemble reads per segment, apply the pass filter, match barcodes, and
// bucket the result. It touches no shared state; Run merges its output.
func processTile(layout *RunLayout, table *IndexTable, tile Tile) (*TileResult, error) {
	n := layout.ClusterCounts[tile]

	pass, err := readTileFilter(layout, tile)
	if err != nil {
		return nil, err
	}
	if len(pass) != n {
		return nil, &FormatError{Lane: tile.Lane, Tile: tile.Number,
			Msg: fmt.Sprintf("pass filter holds %d clusters, run layout records %d", len(pass), n)}
	}

	buffers := make([]*segmentBuffers, len(layout.Segments))
	cycleSeg := make([]int, layout.NumCycles+1) // 1-based cycle -> segment
	cycleOff := make([]int, layout.NumCycles+1) // 1-based cycle -> offset within segment
	for i, seg := range layout.Segments {
		buffers[i] = &segmentBuffers{
			seg:  seg,
			seq:  make([]byte, n*seg.NumCycles),
			qual: make([]byte, n*seg.NumCycles),
		}
		for k := 0; k < seg.NumCycles; k++ {
			cycleSeg[seg.FirstCycle+k] = i
			cycleOff[seg.FirstCycle+k] = k
		}
	}

	for cycle := 1; cycle <= layout.NumCycles; cycle++ {
		if err := readTileCycle(layout, tile, cycle, n, buffers[cycleSeg[cycle]], cycleOff[cycle]); err != nil {
			return nil, err
		}
	}

	var (
		barcodes  = segmentsOf(buffers, Barcode)
		templates = segmentsOf(buffers, Template)
		res       = &TileResult{
			Tile:    tile,
			Buckets: make([][]ReadPair, len(table.Samples())+1),
		}
		undetermined = len(table.Samples())
	)
	res.Stats.PerSample = make([]int, len(table.Samples()))

	var index2 []byte
	for cluster := 0; cluster < n; cluster++ {
		res.Stats.Clusters++
		if !pass[cluster] {
			res.Stats.Filtered++
			continue
		}
		index1 := barcodes[0].seqOf(cluster)
		index2 = nil
		if len(barcodes) > 1 {
			index2 = barcodes[1].seqOf(cluster)
		}
		m := table.Match(index1, index2)

		bucket := undetermined
		switch m.Status {
		case Assigned:
			bucket = table.sampleRow(m.Sample)
			res.Stats.Assigned++
			res.Stats.PerSample[bucket]++
		case Ambiguous:
			res.Stats.Ambiguous++
		case NoMatch:
			res.Stats.NoMatch++
		}

		name := fmt.Sprintf("%s:%d:%d:%d", layout.Name, tile.Lane, tile.Number, cluster)
		barcode := matchName(index1, index2)
		pair := ReadPair{R1: assembleRead(name, 1, barcode, templates[0], cluster)}
		if len(templates) > 1 {
			pair.R2 = assembleRead(name, 2, barcode, templates[1], cluster)
		}
		res.Buckets[bucket] = append(res.Buckets[bucket], pair)
	}
	return res, nil
}

func segmentsOf(buffers []*segmentBuffers, typ SegmentType) []*segmentBuffers {
	var out []*segmentBuffers
	for _, b := range buffers {
		if b.seg.Type == typ {
			out = append(out, b)
		}
	}
	return out
}

// assembleRead builds the FASTQ record for one cluster and one template
// segment, converting raw qualities to phred+33.
func assembleRead(name string, readNum int, barcode string, b *segmentBuffers, cluster int) fastq.Read {
	qual := b.qualOf(cluster)
	ascii := make([]byte, len(qual))
	for i, q := range qual {
		ascii[i] = q + 33
	}
	return fastq.Read{
		Name: fmt.Sprintf("%s %d:N:0:%s", name, readNum, barcode),
		Seq:  string(b.seqOf(cluster)),
		Qual: string(ascii),
	}
}

// readTileFilter decodes a tile's pass-filter file.
func readTileFilter(layout *RunLayout, tile Tile) ([]bool, error) {
	path := layout.FilterPath(tile)
	f, err := openTileFile(tile, path, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck
	pass, err := bcl.ReadFilter(f)
	if err != nil {
		return nil, &FormatError{Lane: tile.Lane, Tile: tile.Number, Msg: "reading pass filter", Err: err}
	}
	return pass, nil
}

// readTileCycle decodes one cycle file into the segment buffers at the
// given within-segment offset.
func readTileCycle(layout *RunLayout, tile Tile, cycle, n int, b *segmentBuffers, off int) error {
	path := layout.BCLPath(tile, cycle)
	f, err := openTileFile(tile, path, cycle)
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	var in io.Reader = f
	if u := compress.NewReaderPath(in, f.name); u != nil {
		in = u
	}
	r, err := bcl.NewReader(in)
	if err != nil {
		return &FormatError{Lane: tile.Lane, Tile: tile.Number, Cycle: cycle, Msg: "reading BCL header", Err: err}
	}
	if r.Len() != n {
		return &FormatError{Lane: tile.Lane, Tile: tile.Number, Cycle: cycle,
			Msg: fmt.Sprintf("BCL file declares %d clusters, run layout records %d", r.Len(), n)}
	}
	var (
		c      bcl.Call
		stride = b.seg.NumCycles
		i      = 0
	)
	for r.Scan(&c) {
		b.seq[i*stride+off] = c.Base
		b.qual[i*stride+off] = c.Qual
		i++
	}
	if err := r.Err(); err != nil || i != n {
		if err == nil {
			err = bcl.ErrShort
		}
		return &FormatError{Lane: tile.Lane, Tile: tile.Number, Cycle: cycle, Msg: "truncated BCL file", Err: err}
	}
	return nil
}

// tileFile is an open per-tile input, remembering the path that resolved
// (the plain name or its ".gz" variant).
type tileFile struct {
	*os.File
	name string
}

// openFile is swapped out by tests to simulate transient open failures.
var openFile = os.Open

// openTileFile opens a tile input, probing for a gzipped variant when the
// plain path does not exist. A missing file is malformed run input
// (FormatError); any other open failure is a ResourceError, which Run
// retries once.
func openTileFile(tile Tile, path string, cycle int) (*tileFile, error) {
	f, err := openFile(path)
	if os.IsNotExist(err) {
		path = path + ".gz"
		f, err = openFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FormatError{Lane: tile.Lane, Tile: tile.Number, Cycle: cycle, Msg: "missing tile file", Err: err}
		}
		return nil, &ResourceError{Path: path, Err: err}
	}
	return &tileFile{File: f, name: path}, nil
}
