// lb-region-test is the final pipeline stage (spec 4.6): it evaluates
// user-supplied genomic regions against a control panel's robust
// mean/SD, t-tests every test sample, estimates a ctDNA fraction where
// the region declares an expected copy-number delta, and reports
// Benjamini-Hochberg-corrected q-values across the whole sample/region
// grid.
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/heathsc/lbtools/region"
	"github.com/heathsc/lbtools/regiontest"
	"github.com/heathsc/lbtools/sampletable"
)

var (
	samples  = flag.String("samples", "", "sample/role list file (name\\trole)")
	regions  = flag.String("regions", "", "region list file")
	inDir    = flag.String("in-dir", ".", "input directory (lb-norm output)")
	inPrefix = flag.String("in-prefix", "norm", "input filename prefix")
	output   = flag.String("output", "", "output path (default stdout)")
	logLevel = flag.String("log-level", "info", "log level (accepted; has no effect)")
	quiet    = flag.Bool("quiet", false, "suppress non-fatal log output (accepted; has no effect)")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	if *samples == "" || *regions == "" {
		log.Fatalf("lb-region-test: --samples and --regions are both required")
	}
	_ = *logLevel
	_ = *quiet

	ctx := vcontext.Background()

	st, err := sampletable.ReadRoleList(ctx, *samples)
	if err != nil {
		log.Fatalf("lb-region-test: %v", err)
	}

	regs, err := region.Read(ctx, *regions)
	if err != nil {
		log.Fatalf("lb-region-test: %v", err)
	}

	w := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("lb-region-test: creating %s: %v", *output, err)
		}
		defer f.Close() // nolint: errcheck
		w = f
	}

	if err := regiontest.Process(ctx, st, regs, *inDir, *inPrefix, w); err != nil {
		log.Fatalf("lb-region-test: %v", err)
	}
}
