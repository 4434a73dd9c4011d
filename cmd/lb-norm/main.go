// lb-norm is the cross-sample normalisation pipeline stage (spec 4.5): it
// computes the per-bin median over a control panel and rewrites every
// output sample's track recentred on that median.
package main

import (
	"context"
	"flag"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/heathsc/lbtools/contigtable"
	"github.com/heathsc/lbtools/crossnorm"
	"github.com/heathsc/lbtools/sampletable"
	"github.com/heathsc/lbtools/track"
)

var (
	samples   = flag.String("samples", "", "sample/role list file (name\\trole)")
	contigs   = flag.String("contigs", "", "contig list file (optional: contigs are discovered from the input directory when omitted)")
	inDir     = flag.String("in-dir", ".", "input directory (lb-predict-cn output)")
	inPrefix  = flag.String("in-prefix", "cov", "input filename prefix")
	outDir    = flag.String("out-dir", ".", "output directory")
	outPrefix = flag.String("out-prefix", "norm", "output filename prefix")
	logLevel  = flag.String("log-level", "info", "log level (accepted; has no effect)")
	quiet     = flag.Bool("quiet", false, "suppress non-fatal log output (accepted; has no effect)")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	if *samples == "" {
		log.Fatalf("lb-norm: --samples is required")
	}
	// SPEC_FULL supplement #4: refuse to run if the output pass would
	// overwrite its own input mid-run.
	if track.SamePlace(*inDir, *inPrefix, *outDir, *outPrefix) {
		log.Fatalf("lb-norm: input (%s/%s) and output (%s/%s) locations are identical", *inDir, *inPrefix, *outDir, *outPrefix)
	}
	_ = *logLevel
	_ = *quiet

	ctx := vcontext.Background()

	st, err := sampletable.ReadRoleList(ctx, *samples)
	if err != nil {
		log.Fatalf("lb-norm: %v", err)
	}
	// The cross-norm stage writes a recentred track for every sample
	// declared "test"; a sample also declared "control" (self-
	// normalisation, see DESIGN.md) still gets one, its own median
	// contribution included (spec 9: "document, do not correct").
	for i, s := range st.Samples {
		if s.Has(sampletable.RoleTest) {
			st.Samples[i].Roles |= sampletable.RoleOutput
		}
	}

	var contigNames []string
	if *contigs != "" {
		ct, err := contigtable.Read(ctx, *contigs)
		if err != nil {
			log.Fatalf("lb-norm: %v", err)
		}
		for _, id := range ct.All() {
			contigNames = append(contigNames, ct.Name(id))
		}
	} else {
		contigNames, err = crossnorm.DiscoverContigs(st, *inDir, *inPrefix)
		if err != nil {
			log.Fatalf("lb-norm: %v", err)
		}
	}

	if err := run(ctx, st, contigNames); err != nil {
		log.Fatalf("lb-norm: %v", err)
	}
}

func run(ctx context.Context, st *sampletable.Table, contigNames []string) error {
	loc := crossnorm.Locations{InDir: *inDir, InPrefix: *inPrefix, OutDir: *outDir, OutPrefix: *outPrefix}
	var once errors.Once
	for _, contig := range contigNames {
		if err := crossnorm.ProcessContig(ctx, st, loc, contig); err != nil {
			log.Error.Printf("lb-norm: contig %s: %v", contig, err)
			once.Set(errors.E(err, "contig", contig))
		}
	}
	return once.Err()
}
