// lb-gc-index builds and dumps a GcIndex for a reference FASTA, letting an
// operator precompute or inspect the per-bin GC classification ahead of a
// full lb-predict-cn run, the way bio-bam-gindex exists purely as a
// diagnostic utility alongside the teacher's own pipeline tools.
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
)

var (
	reference = flag.String("reference", "", "reference FASTA path")
	contigs   = flag.String("contigs", "", "contig list file")
	blockSize = flag.Uint64("block-size", 100, "bin size in bp")
	threads   = flag.Int("threads", runtime.NumCPU(), "worker threads for indexed parallel contig scanning")
	output    = flag.String("output", "", "output path (default stdout)")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	if *reference == "" {
		log.Fatalf("lb-gc-index: --reference is required")
	}
	if *contigs == "" {
		log.Fatalf("lb-gc-index: --contigs is required")
	}

	ctx := vcontext.Background()

	if err := gcindex.CheckReference(*reference); err != nil {
		log.Fatalf("lb-gc-index: %v", err)
	}

	ct, err := contigtable.Read(ctx, *contigs)
	if err != nil {
		log.Fatalf("lb-gc-index: %v", err)
	}

	idx, err := gcindex.Build(ctx, *reference, ct, *blockSize, *threads)
	if err != nil {
		log.Fatalf("lb-gc-index: %v", err)
	}

	w := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("lb-gc-index: creating %s: %v", *output, err)
		}
		defer f.Close() // nolint: errcheck
		w = f
	}

	for _, id := range ct.All() {
		name := ct.Name(id)
		cd, ok := idx.Lookup(name)
		if !ok {
			log.Error.Printf("lb-gc-index: contig %s has no GC data", name)
			continue
		}
		for i, g := range cd.Bins {
			pos := uint64(i) * *blockSize
			if g < 0 {
				fmt.Fprintf(w, "%s\t%d\tNA\n", name, pos)
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t%d\n", name, pos, g)
		}
	}
}
