// Package regiontest implements the final comparison stage: control
// samples establish a robust mean/SD of copy number per declared region,
// then every non-control sample's coverage in that region is t-tested
// against the control estimate, with an optional ctDNA fraction estimate
// when the region declares an expected copy-number delta, and p-values
// are corrected for multiple testing across the whole sample/region grid.
package regiontest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/heathsc/lbtools/numlib"
	"github.com/heathsc/lbtools/region"
	"github.com/heathsc/lbtools/sampletable"
	"github.com/heathsc/lbtools/track"
)

// regData is the robust mean/SD estimate for one region, built from the
// control samples.
type regData struct {
	region  *region.Region
	n       int
	mean    float64
	sd      float64
	sdRatio float64
}

func newRegData(reg *region.Region, n int, mean, sd float64) regData {
	sdRatio := 1.0
	if reg.HasDelta {
		r, err := numlib.Qt(0.975, float64(n-1))
		if err != nil {
			r = 0
		}
		if reg.DeltaCN < 0 {
			r = -r
		}
		sdRatio = r
	}
	return regData{region: reg, n: n, mean: mean, sd: sd, sdRatio: sdRatio}
}

// sampleResult is one sample's comparison against one region.
type sampleResult struct {
	reg      *regData
	copyNum  float64
	t        float64
	p        float64
	q        float64
	hasQ     bool
	ctDNA    string
}

func newSampleResult(rd *regData, z float64) sampleResult {
	diff := z - rd.mean
	t := diff / rd.sd
	ctDNA := "NA"
	if rd.region.HasDelta {
		delta := float64(rd.region.DeltaCN)
		if rd.region.DeltaCN < 0 {
			t = -t
		}
		clamp := func(x float64) float64 {
			v := x / delta
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			return v
		}
		a := clamp(diff - rd.sdRatio*rd.sd)
		b := clamp(diff)
		c := clamp(diff + rd.sdRatio*rd.sd)
		ctDNA = fmt.Sprintf("%.4f (%.4f-%.4f)", b, a, c)
	}
	p, err := numlib.Pt(t, float64(rd.n-1))
	if err != nil {
		p = 1
	}
	return sampleResult{
		reg:     rd,
		copyNum: z - rd.mean + 2.0,
		t:       t,
		p:       p,
		ctDNA:   ctDNA,
	}
}

// readRegionMean returns the mean copy number over the bins overlapping
// reg in the given track file, estimating the bin spacing from the
// smallest gap between consecutive positions read. Returns false if no
// overlapping bin was found.
func readRegionMean(ctx context.Context, path string, reg *region.Region) (float64, bool, error) {
	pts, err := track.ReadContig(ctx, path)
	if err != nil {
		return 0, false, err
	}
	if len(pts) == 0 {
		return 0, false, nil
	}
	binSize := 1
	for i := 1; i < len(pts); i++ {
		if d := pts[i].Pos - pts[i-1].Pos; d > 0 && (i == 1 || d < binSize) {
			binSize = d
		}
	}
	half := binSize / 2
	var sum float64
	var n int
	for _, p := range pts {
		if reg.Overlaps(p.Pos, half) {
			sum += p.CN
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

// quartiles returns (q1, q2, q3) of v, taken at indices n/4, n/2 and 3n/4.
// No copy is made: the caller's slice is sorted in place.
func quartiles(v []float64) (float64, float64, float64) {
	sort.Float64s(v)
	l := len(v)
	return v[l>>2], v[l>>1], v[(3*l)>>2]
}

type outRow struct {
	sample string
	result sampleResult
}

// Process runs the full region-test pipeline over every declared region
// and writes a single TSV report to w.
func Process(ctx context.Context, samples *sampletable.Table, regions []region.Region, outputDir, prefix string, w io.Writer) error {
	var regDataList []regData
	for i := range regions {
		reg := &regions[i]
		var vals []float64
		for _, s := range samples.Samples {
			if !s.Has(sampletable.RoleControl) {
				continue
			}
			path := track.SamplePath(outputDir, prefix, s.Name, reg.Contig)
			if mean, ok, err := readRegionMean(ctx, path, reg); err != nil {
				log.Error.Printf("regiontest: skipping control %s for %s: %v", s.Name, reg.Desc, err)
			} else if ok {
				vals = append(vals, mean)
			}
		}
		if len(vals) < 5 {
			log.Error.Printf("regiontest: not enough control data for robust estimate of %s", reg.Desc)
			continue
		}
		q1, q2, q3 := quartiles(vals)
		sd, ok := numlib.RobustSD(q3-q1, len(vals))
		if !ok {
			log.Error.Printf("regiontest: not enough control data for robust estimate of %s", reg.Desc)
			continue
		}
		mean := (q1 + q2 + q3) / 3.0
		regDataList = append(regDataList, newRegData(reg, len(vals), mean, sd))
	}

	var rows []outRow
	for _, s := range samples.Samples {
		if s.Has(sampletable.RoleControl) {
			continue
		}
		for i := range regDataList {
			rd := &regDataList[i]
			path := track.SamplePath(outputDir, prefix, s.Name, rd.region.Contig)
			mean, ok, err := readRegionMean(ctx, path, rd.region)
			if err != nil {
				log.Error.Printf("regiontest: skipping %s for %s: %v", s.Name, rd.region.Desc, err)
				continue
			}
			if !ok {
				continue
			}
			rows = append(rows, outRow{sample: s.Name, result: newSampleResult(rd, mean)})
		}
	}

	p := make([]float64, len(rows))
	for i, r := range rows {
		p[i] = r.result.p
	}
	q := numlib.FDR(p)
	for i := range rows {
		rows[i].result.q = q[i]
		rows[i].result.hasQ = true
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "sample\tregion\tn\tsd\tcopy number\tctDNA\tt\tp\tp(FDR corrected)")
	for _, r := range rows {
		res := r.result
		qStr := "NA"
		if res.hasQ {
			qStr = strconv.FormatFloat(res.q, 'e', 6, 64)
		}
		fmt.Fprintf(bw, "%s\t%s\t%d\t%.6f\t%.6f\t%s\t%.6e\t%.6e\t%s\n",
			r.sample, res.reg.region.Desc, res.reg.n, res.reg.sd, res.copyNum, res.ctDNA, res.t, res.p, qStr)
	}
	if err := bw.Flush(); err != nil {
		return errors.E(err, "writing region test report")
	}
	return nil
}
