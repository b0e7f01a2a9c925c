package main

// bio-demux converts a raw run directory into per-sample FASTQ files.
//
// Example:
//
//    bio-demux -input /runs/220101_A001 -sample-sheet samples.csv \
//        -read-structure 150T8B150T -output-dir out -gzip
//
// The run directory is laid out lane/cycle/tile
// (L001/C1.1/s_1_1101.bcl[.gz], pass filters at L001/s_1_1101.filter). The
// sample sheet is CSV: sample_id,index[,index2[,mismatches]]. Output is one
// FASTQ file per sample per read (<sample>_R1.fastq, <sample>_R2.fastq for
// paired runs), plus Undetermined_R*.fastq, plus a metrics TSV.

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/demux/demux"
	"github.com/grailbio/demux/encoding/fastq"
	"github.com/klauspost/pgzip"
)

type demuxFlags struct {
	input         string
	sampleSheet   string
	outputDir     string
	readStructure string
	metricsFile   string
	gzipOutput    bool
	inMemory      bool
}

func main() {
	opts := demux.DefaultOpts
	flags := demuxFlags{}
	flag.StringVar(&flags.input, "input", "", "Run directory to demultiplex.")
	flag.StringVar(&flags.sampleSheet, "sample-sheet", "", "CSV file mapping index sequences to samples.")
	flag.StringVar(&flags.outputDir, "output-dir", ".", "Directory for per-sample FASTQ output.")
	flag.StringVar(&flags.readStructure, "read-structure", "", `Read structure, e.g. "150T8B150T" (T=template read, B=barcode read).`)
	flag.StringVar(&flags.metricsFile, "metrics", "", "If set, write per-sample assignment counts to this TSV file.")
	flag.BoolVar(&flags.gzipOutput, "gzip", false, "Gzip-compress FASTQ output.")
	flag.BoolVar(&flags.inMemory, "in-memory", false,
		"Hold the whole run in memory and write output at the end. Only for small runs; the default streams per tile.")
	flag.IntVar(&opts.MaxMismatches, "max-mismatches", demux.DefaultOpts.MaxMismatches,
		"Mismatches tolerated per index read. Negative selects index length / 4.")
	flag.IntVar(&opts.Parallelism, "parallelism", demux.DefaultOpts.Parallelism,
		"Number of tile workers. 0 means one per CPU.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if flags.input == "" || flags.sampleSheet == "" || flags.readStructure == "" {
		log.Fatal("-input, -sample-sheet, and -read-structure are required")
	}

	segments, err := demux.ParseReadStructure(flags.readStructure)
	if err != nil {
		log.Fatalf("parsing read structure: %v", err)
	}
	samples, err := readSampleSheet(ctx, flags.sampleSheet)
	if err != nil {
		log.Fatalf("reading %s: %v", flags.sampleSheet, err)
	}
	table, err := demux.NewIndexTable(samples, opts.MaxMismatches)
	if err != nil {
		log.Fatalf("building index table: %v", err)
	}
	layout, err := demux.DiscoverRunLayout(flags.input, segments)
	if err != nil {
		log.Fatalf("discovering run layout: %v", err)
	}
	if err := os.MkdirAll(flags.outputDir, 0755); err != nil {
		log.Fatalf("creating %s: %v", flags.outputDir, err)
	}

	sink := &fastqSink{
		dir:    flags.outputDir,
		gzip:   flags.gzipOutput,
		paired: len(layout.TemplateSegments()) > 1,
	}
	var agg demux.Aggregator
	var mem *demux.MemAggregator
	if flags.inMemory {
		mem = demux.NewMemAggregator(table)
		agg = mem
	} else {
		agg = demux.NewStreamAggregator(table, sink.flush)
	}

	start := time.Now()
	stats, err := demux.Run(ctx, layout, table, opts, agg)
	if err != nil {
		log.Fatalf("demultiplexing %s: %v", flags.input, err)
	}
	if mem != nil {
		for _, b := range mem.Buckets() {
			if err := sink.flush(ctx, b.Sample, b.Reads); err != nil {
				log.Fatalf("writing %s: %v", b.Sample, err)
			}
		}
	}
	if err := sink.Close(); err != nil {
		log.Fatalf("closing output: %v", err)
	}
	if flags.metricsFile != "" {
		if err := writeMetrics(flags.metricsFile, table, stats); err != nil {
			log.Fatalf("writing metrics: %v", err)
		}
	}
	log.Printf("%s: %d clusters in %v: %d filtered, %d assigned, %d ambiguous, %d no-match",
		flags.input, stats.Clusters, time.Since(start).Round(time.Millisecond),
		stats.Filtered, stats.Assigned, stats.Ambiguous, stats.NoMatch)
}

func readSampleSheet(ctx context.Context, path string) ([]demux.Sample, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	return demux.ReadSampleSheet(r)
}

// sampleOutput is the open FASTQ writer pair of one sample.
type sampleOutput struct {
	r1, r2  *fastq.Writer
	closers []io.Closer
}

// fastqSink writes per-sample FASTQ files, opening each sample's files on
// first use. Its flush method is a demux.FlushFunc: concurrent calls only
// ever target different samples, so only the lazy-open map needs a lock.
type fastqSink struct {
	dir    string
	gzip   bool
	paired bool

	mu      sync.Mutex
	outputs map[string]*sampleOutput
}

func (s *fastqSink) flush(ctx context.Context, sample string, reads []demux.ReadPair) error {
	out, err := s.output(sample)
	if err != nil {
		return err
	}
	for i := range reads {
		if err := out.r1.Write(&reads[i].R1); err != nil {
			return err
		}
		if s.paired {
			if err := out.r2.Write(&reads[i].R2); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *fastqSink) output(sample string) (*sampleOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outputs == nil {
		s.outputs = map[string]*sampleOutput{}
	}
	if out, ok := s.outputs[sample]; ok {
		return out, nil
	}
	out := &sampleOutput{}
	var err error
	if out.r1, err = s.open(out, sample, 1); err != nil {
		return nil, err
	}
	if s.paired {
		if out.r2, err = s.open(out, sample, 2); err != nil {
			return nil, err
		}
	}
	s.outputs[sample] = out
	return out, nil
}

func (s *fastqSink) open(out *sampleOutput, sample string, readNum int) (*fastq.Writer, error) {
	name := sample + "_R" + strconv.Itoa(readNum) + ".fastq"
	if s.gzip {
		name += ".gz"
	}
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	out.closers = append(out.closers, f)
	var w io.Writer = bufio.NewWriter(f)
	out.closers = append(out.closers, flusher{w.(*bufio.Writer)})
	if s.gzip {
		gz := pgzip.NewWriter(w)
		out.closers = append(out.closers, gz)
		w = gz
	}
	return fastq.NewWriter(w), nil
}

// Close flushes and closes every open output file.
func (s *fastqSink) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.outputs {
		// Close innermost first: gzip, then bufio, then the file.
		for i := len(out.closers) - 1; i >= 0; i-- {
			if e := out.closers[i].Close(); e != nil && err == nil {
				err = e
			}
		}
	}
	return err
}

type flusher struct{ b *bufio.Writer }

func (f flusher) Close() error { return f.b.Flush() }

// writeMetrics reports run statistics as TSV, one row per sample plus the
// undetermined breakdown.
func writeMetrics(path string, table *demux.IndexTable, stats demux.Stats) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	w := tsv.NewWriter(f)
	for _, col := range []string{"SAMPLE", "INDEX", "CLUSTERS"} {
		w.WriteString(col)
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for i, sample := range table.Samples() {
		w.WriteString(sample.ID)
		index := sample.Index1
		if sample.Index2 != "" {
			index += "+" + sample.Index2
		}
		w.WriteString(index)
		w.WriteInt64(int64(stats.PerSample[i]))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	for _, row := range []struct {
		label string
		count int
	}{
		{"Undetermined:ambiguous", stats.Ambiguous},
		{"Undetermined:no-match", stats.NoMatch},
		{"Filtered", stats.Filtered},
	} {
		w.WriteString(row.label)
		w.WriteString("-")
		w.WriteInt64(int64(row.count))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}
