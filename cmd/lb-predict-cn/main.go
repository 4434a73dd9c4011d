// lb-predict-cn is the coverage-collector and GC-normaliser pipeline
// stage (spec 4.2-4.4): for every sample in the alignment list it reads
// filtered per-bin coverage, GC-normalises it against the reference, and
// writes one track file per sample per contig.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/heathsc/lbtools/contigtable"
	"github.com/heathsc/lbtools/gcindex"
	"github.com/heathsc/lbtools/sampletable"
	"github.com/heathsc/lbtools/scheduler"
)

var (
	reference  = flag.String("reference", "", "reference FASTA path")
	contigs    = flag.String("contigs", "", "contig list file")
	samples    = flag.String("samples", "", "sample list file (name\\tpath)")
	outDir     = flag.String("out-dir", ".", "output directory")
	prefix     = flag.String("prefix", "cov", "output filename prefix")
	blockSize  = flag.Uint64("block-size", 100, "bin size in bp")
	threads    = flag.Int("threads", runtime.NumCPU(), "worker threads")
	readers    = flag.Int("readers", 0, "maximum concurrent alignment readers (default ceil((threads+3)/4))")
	minMAPQ    = flag.Uint("min-mapq", 1, "minimum MAPQ")
	minBaseQ   = flag.Uint("min-base-qual", 0, "minimum base quality")
	minTLen    = flag.Int("min-template-len", -1, "minimum template length (negative disables the band; set both bounds or neither)")
	maxTLen    = flag.Int("max-template-len", -1, "maximum template length (negative disables the band; set both bounds or neither)")
	keepDup    = flag.Bool("keep-duplicates", false, "count reads flagged as duplicates")
	ignoreDup  = flag.Bool("ignore-duplicate-flag", false, "do not treat the duplicate flag as rejecting a read")
	logLevel   = flag.String("log-level", "info", "log level (accepted; has no effect)")
	quiet      = flag.Bool("quiet", false, "suppress non-fatal log output (accepted; has no effect)")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	if *reference == "" || *contigs == "" || *samples == "" {
		log.Fatalf("lb-predict-cn: --reference, --contigs and --samples are all required")
	}
	if (*minTLen >= 0) != (*maxTLen >= 0) {
		log.Fatalf("lb-predict-cn: --min-template-len and --max-template-len must be supplied together")
	}
	if *minTLen >= 0 && *minTLen > *maxTLen {
		log.Fatalf("lb-predict-cn: --min-template-len (%d) > --max-template-len (%d)", *minTLen, *maxTLen)
	}
	_ = *logLevel
	_ = *quiet

	ctx := vcontext.Background()

	if err := gcindex.CheckReference(*reference); err != nil {
		log.Fatalf("lb-predict-cn: %v", err)
	}

	ct, err := contigtable.Read(ctx, *contigs)
	if err != nil {
		log.Fatalf("lb-predict-cn: %v", err)
	}

	st, err := sampletable.ReadAlignmentList(ctx, *samples)
	if err != nil {
		log.Fatalf("lb-predict-cn: %v", err)
	}
	st.MarkOutputs()

	nThreads := *threads
	if nThreads < 1 {
		nThreads = 1
	}
	nReaders := *readers
	if nReaders < 1 {
		nReaders = scheduler.DefaultNumReaders(nThreads)
	}
	if nReaders > nThreads {
		nReaders = nThreads
	}

	log.Debug.Printf("lb-predict-cn: building GC index from %s (block size %d)", *reference, *blockSize)
	gcIdx, err := gcindex.Build(ctx, *reference, ct, *blockSize, nThreads)
	if err != nil {
		log.Fatalf("lb-predict-cn: %v", err)
	}

	env := &scheduler.Env{
		Samples:   st,
		Contigs:   ct,
		GCIndex:   gcIdx,
		BlockSize: *blockSize,
		Filter: scheduler.FilterConfig{
			MinMAPQ:        byte(*minMAPQ),
			MinBaseQual:    byte(*minBaseQ),
			HasLenBand:     *minTLen >= 0,
			MinTemplateLen: *minTLen,
			MaxTemplateLen: *maxTLen,
			KeepDuplicates: *keepDup,
			IgnoreDupFlag:  *ignoreDup,
		},
		OutDir: *outDir,
		Prefix: *prefix,
	}

	log.Debug.Printf("lb-predict-cn: running %d workers, %d concurrent readers, %d samples", nThreads, nReaders, st.Len())
	if err := scheduler.Run(ctx, env, nThreads, nReaders); err != nil {
		fmt.Fprintln(os.Stderr, "lb-predict-cn: "+err.Error())
		os.Exit(1)
	}
}
