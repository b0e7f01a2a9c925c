// Package demux assigns the clusters of a raw sequencing run to the
// samples that produced them. It decodes per-cycle base-call files
// (encoding/bcl) into full-length reads, drops clusters rejected by the
// instrument's pass filter, matches each cluster's index read(s) against
// the sample sheet under a bounded mismatch budget, and accumulates the
// results in per-sample buckets for the FASTQ writer.
//
// Processing is tile-parallel: each tile's pipeline is independent, and
// the only shared mutable state is the Aggregator. The index table and run
// layout are built once, before the worker pool starts, and are read-only
// thereafter.
package demux

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Run demultiplexes every tile of the run, delivering per-tile buckets to
// agg and returning the merged run statistics. A FormatError on any tile
// aborts the run; a tile that fails with a ResourceError is retried once
// after opts.RetryBackoff. On error the returned Stats are meaningless.
func Run(ctx context.Context, layout *RunLayout, table *IndexTable, opts Opts, agg Aggregator) (Stats, error) {
	if err := validateBarcodeLayout(layout, table); err != nil {
		return Stats{}, err
	}
	tiles := layout.Tiles
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(tiles) {
		parallelism = len(tiles)
	}
	log.Printf("demux: %d tiles, %d cycles, %d samples, %d workers",
		len(tiles), layout.NumCycles, len(table.Samples()), parallelism)

	jobStats := make([]Stats, parallelism)
	err := traverse.Each(parallelism, func(job int) error {
		start := job * len(tiles) / parallelism
		end := (job + 1) * len(tiles) / parallelism
		for _, tile := range tiles[start:end] {
			res, err := runTile(layout, table, opts, tile)
			if err != nil {
				return err
			}
			if err := agg.Add(ctx, res); err != nil {
				return err
			}
			jobStats[job] = jobStats[job].Merge(res.Stats)
		}
		return nil
	})

	var stats Stats
	for _, s := range jobStats {
		stats = stats.Merge(s)
	}
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// validateBarcodeLayout rejects a sample sheet whose index reads contradict
// the run's barcode segments. Without this check every cluster would
// silently classify as no-match through the Match length guard.
func validateBarcodeLayout(layout *RunLayout, table *IndexTable) error {
	barcodes := layout.BarcodeSegments()
	len1, len2 := table.IndexLengths()
	indexReads := 1
	if len2 > 0 {
		indexReads = 2
	}
	if len(barcodes) != indexReads {
		return configErrorf("sample sheet declares %d index reads, read structure declares %d barcode reads",
			indexReads, len(barcodes))
	}
	if barcodes[0].NumCycles != len1 {
		return configErrorf("sample sheet indexes are %d bases, barcode read spans %d cycles",
			len1, barcodes[0].NumCycles)
	}
	if len2 > 0 && barcodes[1].NumCycles != len2 {
		return configErrorf("sample sheet second indexes are %d bases, second barcode read spans %d cycles",
			len2, barcodes[1].NumCycles)
	}
	return nil
}

// runTile processes one tile, retrying once on a ResourceError. Tiles are
// retryable because processing performs no destructive mutation on shared
// state before aggregation.
func runTile(layout *RunLayout, table *IndexTable, opts Opts, tile Tile) (*TileResult, error) {
	res, err := processTile(layout, table, tile)
	var rerr *ResourceError
	if err != nil && errors.As(err, &rerr) {
		log.Error.Printf("lane %d tile %d: %v; retrying once", tile.Lane, tile.Number, err)
		time.Sleep(opts.RetryBackoff)
		res, err = processTile(layout, table, tile)
	}
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("lane %d tile %d: %d clusters, %d filtered, %d assigned",
		tile.Lane, tile.Number, res.Stats.Clusters, res.Stats.Filtered, res.Stats.Assigned)
	return res, nil
}
