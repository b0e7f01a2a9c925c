package demux

import (
	"context"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/demux/encoding/fastq"
)

// A ReadPair is one cluster's assembled output: read 1, and read 2 when
// the run layout declares a second template read (R2 is the zero value
// otherwise). Quality strings are phred+33 encoded.
type ReadPair struct {
	R1 fastq.Read
	R2 fastq.Read
}

// A TileResult is one tile's demultiplexed output. Buckets is indexed by
// sample-sheet row, with one extra trailing bucket for undetermined reads;
// the indexing matches IndexTable.Samples.
type TileResult struct {
	Tile    Tile
	Buckets [][]ReadPair
	Stats   Stats
}

// An Aggregator accumulates matched reads per sample. The two
// implementations below back the same interface so callers are agnostic to
// whether a run is held in memory or flushed per tile: MemAggregator keeps
// everything for small runs, StreamAggregator hands each tile's partial
// buckets to the external writer as they complete, bounding memory for
// production-scale runs. Add may be called concurrently from tile workers.
type Aggregator interface {
	Add(ctx context.Context, res *TileResult) error
	// Close releases writer-side resources; no Add may follow it.
	Close(ctx context.Context) error
}

// A Bucket is one sample's accumulated reads, ordered by arrival.
type Bucket struct {
	Sample string
	Reads  []ReadPair
}

// bucketIDs returns the bucket identifiers in output order: sample-sheet
// order followed by the reserved undetermined bucket.
func bucketIDs(table *IndexTable) []string {
	ids := make([]string, 0, len(table.Samples())+1)
	for _, s := range table.Samples() {
		ids = append(ids, s.ID)
	}
	return append(ids, Undetermined)
}

// MemAggregator accumulates the whole run in memory. Writes to a given
// sample's bucket are serialized by a per-bucket lock; reads from
// different tiles for the same sample interleave at ReadPair granularity,
// never within a pair.
type MemAggregator struct {
	ids     []string
	mu      []sync.Mutex
	buckets [][]ReadPair
}

// NewMemAggregator returns an in-memory aggregator with one bucket per
// table sample plus the undetermined bucket.
func NewMemAggregator(table *IndexTable) *MemAggregator {
	ids := bucketIDs(table)
	return &MemAggregator{
		ids:     ids,
		mu:      make([]sync.Mutex, len(ids)),
		buckets: make([][]ReadPair, len(ids)),
	}
}

// Add appends a tile's buckets.
func (a *MemAggregator) Add(ctx context.Context, res *TileResult) error {
	for i, reads := range res.Buckets {
		if len(reads) == 0 {
			continue
		}
		a.mu[i].Lock()
		a.buckets[i] = append(a.buckets[i], reads...)
		a.mu[i].Unlock()
	}
	return nil
}

// Close implements Aggregator.
func (a *MemAggregator) Close(ctx context.Context) error { return nil }

// Buckets returns the accumulated buckets as an ordered mapping from
// sample identifier (plus Undetermined, last) to reads. The result is
// read-only from the caller's perspective; it must not be called
// concurrently with Add.
func (a *MemAggregator) Buckets() []Bucket {
	out := make([]Bucket, len(a.ids))
	for i, id := range a.ids {
		out[i] = Bucket{Sample: id, Reads: a.buckets[i]}
	}
	return out
}

// A FlushFunc receives one sample's reads from one completed tile. Calls
// for the same sample are serialized by StreamAggregator; calls for
// different samples may be concurrent.
type FlushFunc func(ctx context.Context, sample string, reads []ReadPair) error

// StreamAggregator flushes each tile's partial buckets to the external
// writer as soon as the tile completes, so resident memory is bounded by
// tiles in flight rather than run size.
type StreamAggregator struct {
	ids   []string
	mu    []sync.Mutex
	flush FlushFunc
	err   errors.Once
}

// NewStreamAggregator returns an aggregator that drains per-tile results
// through flush.
func NewStreamAggregator(table *IndexTable, flush FlushFunc) *StreamAggregator {
	ids := bucketIDs(table)
	return &StreamAggregator{
		ids:   ids,
		mu:    make([]sync.Mutex, len(ids)),
		flush: flush,
	}
}

// Add flushes a tile's buckets. The first flush error is latched and
// returned by this and all subsequent calls.
func (a *StreamAggregator) Add(ctx context.Context, res *TileResult) error {
	for i, reads := range res.Buckets {
		if len(reads) == 0 {
			continue
		}
		if a.err.Err() != nil {
			break
		}
		a.mu[i].Lock()
		err := a.flush(ctx, a.ids[i], reads)
		a.mu[i].Unlock()
		if err != nil {
			a.err.Set(err)
		}
	}
	return a.err.Err()
}

// Close implements Aggregator.
func (a *StreamAggregator) Close(ctx context.Context) error { return a.err.Err() }
