// Package track writes and reads the per-sample, per-contig coverage
// track files that flow between the three pipeline stages: raw+normalised
// coverage from prediction, and copy-number tracks from cross-sample
// normalisation. All file access goes through grailbio/base/file so that
// ".gz"-suffixed paths get transparent compression/decompression for free,
// matching every other IO package in this tree.
package track

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"

	"github.com/heathsc/lbtools/scheduler"
)

// SamplePath returns the track file path for one sample's contig under
// dir/sampleName/prefix_contig.txt (spec 6: "directory <out_dir>/<sample_name>/,
// file <prefix>_<contig>.txt").
func SamplePath(dir, prefix, sampleName, contig string) string {
	return filepath.Join(dir, sampleName, fmt.Sprintf("%s_%s.txt", prefix, contig))
}

// EnsureSampleDir creates a sample's output subdirectory ahead of writing,
// following the original's setup_output (SPEC_FULL supplement #7).
func EnsureSampleDir(dir, sampleName string) error {
	d := filepath.Join(dir, sampleName)
	if err := os.MkdirAll(d, 0o755); err != nil {
		return errors.E(err, "creating output directory", d)
	}
	return nil
}

// WriteContig writes one sample's normalised contig track: one line per
// bin, "contig\tposition\tnormalized\trawcoverage".
func WriteContig(ctx context.Context, path, contig string, blockSize uint64, cov scheduler.NormalizedContig) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "creating output file", path)
	}
	defer f.Close(ctx) // nolint: errcheck

	w := bufio.NewWriter(f.Writer(ctx))
	bs := float64(blockSize)
	for i, norm := range cov.Bins {
		x := int((float64(i)+0.5)*bs + 0.5)
		var raw float64
		if cov.Raw != nil && i < len(cov.Raw.Bins) {
			raw = float64(cov.Raw.Bins[i]) / bs
		}
		if _, err := fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\n", contig, x, norm, raw); err != nil {
			return errors.E(err, "writing output file", path)
		}
	}
	return w.Flush()
}

// Point is one (position, value) pair read back from a track file.
type Point struct {
	Pos int
	CN  float64
}

// ReadContig reads a track file's (position, value) column pairs, skipping
// malformed or short lines rather than failing the whole read.
func ReadContig(ctx context.Context, path string) ([]Point, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "opening track file", path)
	}
	defer f.Close(ctx) // nolint: errcheck

	var pts []Point
	sc := bufio.NewScanner(f.Reader(ctx))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		cn, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		pts = append(pts, Point{Pos: pos, CN: cn})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, "reading track file", path)
	}
	return pts, nil
}

// MedIQR is the per-position median and IQR of a contig's control-sample
// coverage, as accumulated by crossnorm.
type MedIQR struct {
	Median float64
	IQR    float64
}

// WriteCorrected reads inPath and writes outPath with every bin's value
// recentred on 2 plus its deviation from the control median at that
// position: "contig\tpos\t(2+z-median)\tz", z being the input's value.
// Positions without a known
// median, or whose IQR falls outside (low, high) (the central 99% of
// IQRs across the contig, excluded strictly at both boundaries per spec
// 9 note (c)), are dropped.
func WriteCorrected(ctx context.Context, inPath, outPath string, med map[int]MedIQR, low, high float64) error {
	in, err := file.Open(ctx, inPath)
	if err != nil {
		return errors.E(err, "opening track file", inPath)
	}
	defer in.Close(ctx) // nolint: errcheck

	out, err := file.Create(ctx, outPath)
	if err != nil {
		return errors.E(err, "creating corrected track file", outPath)
	}
	defer out.Close(ctx) // nolint: errcheck

	w := bufio.NewWriter(out.Writer(ctx))
	sc := bufio.NewScanner(in.Reader(ctx))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		m, ok := med[pos]
		if !ok || m.IQR <= low || m.IQR >= high {
			continue
		}
		z, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		y := 2.0 + z - m.Median
		if _, err := fmt.Fprintf(w, "%s\t%d\t%.4f\t%s\n", fields[0], pos, y, fields[2]); err != nil {
			return errors.E(err, "writing corrected track file", outPath)
		}
	}
	if err := sc.Err(); err != nil {
		return errors.E(err, "reading track file", inPath)
	}
	return w.Flush()
}

// DiscoverSampleFiles scans dir/sampleName for files named
// "prefix_<contig>.txt" or "prefix_<contig>.txt.gz" and returns the set of
// contig names found, implementing the original's directory-scan sample
// discovery (SPEC_FULL supplement #3) rather than requiring an exhaustive
// file list for the cross-norm stage.
func DiscoverSampleFiles(dir, prefix, sampleName string) ([]string, error) {
	d := filepath.Join(dir, sampleName)
	entries, err := os.ReadDir(d)
	if err != nil {
		return nil, errors.E(err, "scanning sample directory", d)
	}
	var contigs []string
	p := prefix + "_"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if c, ok := ContigFromFilename(e.Name(), prefix); ok && strings.HasPrefix(e.Name(), p) {
			contigs = append(contigs, c)
		}
	}
	return contigs, nil
}

// ContigFromFilename recovers the contig name from a "prefix_contig.txt" or
// "prefix_contig.txt.gz" track filename.
func ContigFromFilename(name, prefix string) (string, bool) {
	base := strings.TrimSuffix(name, ".gz")
	if !strings.HasSuffix(base, ".txt") {
		return "", false
	}
	base = strings.TrimSuffix(base, ".txt")
	p := prefix + "_"
	if !strings.HasPrefix(base, p) {
		return "", false
	}
	return strings.TrimPrefix(base, p), true
}

// SamePlace reports whether an input prefix+directory and an output
// prefix+directory denote the same location, following the original's
// config validation that refuses to let a normalisation pass overwrite its
// own input mid-run (SPEC_FULL supplement #4).
func SamePlace(dirA, prefixA, dirB, prefixB string) bool {
	a, errA := filepath.Abs(dirA)
	b, errB := filepath.Abs(dirB)
	if errA != nil || errB != nil {
		a, b = dirA, dirB
	}
	return a == b && prefixA == prefixB
}
