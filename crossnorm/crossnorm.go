// Package crossnorm implements cross-sample normalisation: for each
// contig, the per-position median and IQR of the designated control
// samples' normalised coverage is computed, then every output sample's
// track for that contig is rewritten recentred on that median, with
// positions whose control IQR is an outlier across the contig discarded.
package crossnorm

import (
	"context"
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/heathsc/lbtools/sampletable"
	"github.com/heathsc/lbtools/track"
)

// iqrTrimFraction is the fraction of extreme-IQR positions excluded from
// both ends of the contig's IQR distribution before normalisation.
const iqrTrimFraction = 0.005

// Locations names the separate input and output directory/prefix pairs a
// cross-norm run reads from and writes to: the input side is the
// prediction stage's per-sample coverage tracks, the output side is this
// stage's own, differently-prefixed, recentred tracks (SPEC_FULL supplement
// #4: a run refuses to start if the two coincide, checked by the caller via
// track.SamePlace before ProcessContig is ever invoked).
type Locations struct {
	InDir, InPrefix   string
	OutDir, OutPrefix string
}

// ProcessContig reads every control sample's track file for one contig,
// computes the per-position median/IQR, then writes every output sample's
// recentred track file for that contig.
func ProcessContig(ctx context.Context, samples *sampletable.Table, loc Locations, contig string) error {
	byPos := make(map[int][]float64)

	for _, s := range samples.Samples {
		if !s.Has(sampletable.RoleControl) {
			continue
		}
		path := track.SamplePath(loc.InDir, loc.InPrefix, s.Name, contig)
		pts, err := track.ReadContig(ctx, path)
		if err != nil {
			log.Error.Printf("crossnorm: skipping control %s/%s: %v", s.Name, contig, err)
			continue
		}
		for _, p := range pts {
			byPos[p.Pos] = append(byPos[p.Pos], p.CN)
		}
	}
	if len(byPos) == 0 {
		return errors.Errorf("crossnorm: no control data found for contig %s", contig)
	}

	med := make(map[int]track.MedIQR, len(byPos))
	iqrs := make([]float64, 0, len(byPos))
	for pos, v := range byPos {
		sort.Float64s(v)
		l := len(v)
		q1, q2, q3 := v[l>>2], v[l>>1], v[(3*l)>>2]
		m := track.MedIQR{Median: q2, IQR: q3 - q1}
		med[pos] = m
		iqrs = append(iqrs, m.IQR)
	}

	sort.Float64s(iqrs)
	n := float64(len(iqrs))
	low := iqrs[int(n*iqrTrimFraction)]
	high := iqrs[int(n*(1-iqrTrimFraction))]
	if low == high {
		// Every position has the same IQR (e.g. a single control, where
		// each position's quartiles all collapse to that one sample's
		// value). There is no distribution to trim an outlier from, so
		// every position passes rather than all of them landing exactly
		// on both the low and the high boundary.
		low, high = math.Inf(-1), math.Inf(1)
	}

	for _, s := range samples.Samples {
		if !s.Has(sampletable.RoleOutput) {
			continue
		}
		inPath := track.SamplePath(loc.InDir, loc.InPrefix, s.Name, contig)
		if err := track.EnsureSampleDir(loc.OutDir, s.Name); err != nil {
			return err
		}
		outPath := track.SamplePath(loc.OutDir, loc.OutPrefix, s.Name, contig)
		if err := track.WriteCorrected(ctx, inPath, outPath, med, low, high); err != nil {
			log.Error.Printf("crossnorm: skipping output %s/%s: %v", s.Name, contig, err)
		}
	}
	return nil
}

// DiscoverContigs returns the union of contig names found across every
// control and output sample's input directory, used when the caller did
// not supply an explicit contig list (SPEC_FULL supplement #3).
func DiscoverContigs(samples *sampletable.Table, inDir, inPrefix string) ([]string, error) {
	seen := map[string]bool{}
	var contigs []string
	for _, s := range samples.Samples {
		if !s.Has(sampletable.RoleControl) && !s.Has(sampletable.RoleOutput) {
			continue
		}
		found, err := track.DiscoverSampleFiles(inDir, inPrefix, s.Name)
		if err != nil {
			log.Error.Printf("crossnorm: scanning %s: %v", s.Name, err)
			continue
		}
		for _, c := range found {
			if !seen[c] {
				seen[c] = true
				contigs = append(contigs, c)
			}
		}
	}
	return contigs, nil
}
