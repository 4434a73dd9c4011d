package gcnorm_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heathsc/lbtools/bincounter"
	"github.com/heathsc/lbtools/contigtable"
	"github.com/heathsc/lbtools/gcindex"
	"github.com/heathsc/lbtools/gcnorm"
	"github.com/heathsc/lbtools/scheduler"
)

// TestNormalizeConstantCoverageYieldsOne exercises the round-trip invariant
// from spec 8: a sample whose raw coverage is the same constant at every
// populated GC class normalises to exactly that constant's ratio to itself,
// i.e. 1, since a flat function is recovered exactly by the local quadratic
// fit regardless of window shape.
func TestNormalizeConstantCoverageYieldsOne(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref.fa")
	// Five contigs, one 10bp block each, spanning five distinct GC classes.
	ref := ">ctgA\nGAAAAAAAAA\n" + // 1 GC -> class 10
		">ctgB\nGGGAAAAAAA\n" + // 3 GC -> class 30
		">ctgC\nGGGGGAAAAA\n" + // 5 GC -> class 50
		">ctgD\nGGGGGGGAAA\n" + // 7 GC -> class 70
		">ctgE\nGGGGGGGGGA\n" // 9 GC -> class 90
	require.NoError(t, os.WriteFile(refPath, []byte(ref), 0o644))

	contigsPath := filepath.Join(dir, "contigs.txt")
	require.NoError(t, os.WriteFile(contigsPath, []byte("ctgA\nctgB\nctgC\nctgD\nctgE\n"), 0o644))

	ctx := vcontext.Background()
	ct, err := contigtable.Read(ctx, contigsPath)
	require.NoError(t, err)

	idx, err := gcindex.Build(ctx, refPath, ct, 10, 1)
	require.NoError(t, err)

	const rawValue = 1000
	rc := scheduler.RawCounts{}
	for _, name := range []string{"ctgA", "ctgB", "ctgC", "ctgD", "ctgE"} {
		rc[name] = &bincounter.Counter{BlockSize: 10, SeqLen: 10, Bins: []uint64{rawValue}}
	}

	out, err := gcnorm.Normalize(ct, idx, 10, rc)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for name, nc := range out {
		require.Len(t, nc.Bins, 1, "contig %s", name)
		assert.InDeltaf(t, 1.0, nc.Bins[0], 1e-9, "contig %s", name)
	}
}

// TestNormalizeUndefinedWhenContigHasNoGCData covers a contig present in
// rc but absent from the GC-normalisation set: its own bins are undefined
// (-1), but the fit itself still succeeds because enough *other* contigs
// contribute populated GC classes. Five classes are used: the tricube
// weight of the window point farthest from the centre is zero, so a
// three-class window leaves fewer than three weighted points for some fits.
func TestNormalizeUndefinedWhenContigHasNoGCData(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref.fa")
	ref := ">ctgA\nGAAAAAAAAA\n" + // class 10
		">ctgB\nGGGAAAAAAA\n" + // class 30
		">ctgC\nGGGGGAAAAA\n" + // class 50
		">ctgD\nGGGGGGGAAA\n" + // class 70
		">ctgE\nGGGGGGGGGA\n" // class 90
	require.NoError(t, os.WriteFile(refPath, []byte(ref), 0o644))
	contigsPath := filepath.Join(dir, "contigs.txt")
	require.NoError(t, os.WriteFile(contigsPath, []byte("ctgA\nctgB\nctgC\nctgD\nctgE\n"), 0o644))

	ctx := vcontext.Background()
	ct, err := contigtable.Read(ctx, contigsPath)
	require.NoError(t, err)
	idx, err := gcindex.Build(ctx, refPath, ct, 10, 1)
	require.NoError(t, err)

	rc := scheduler.RawCounts{
		"ctgA":       &bincounter.Counter{BlockSize: 10, SeqLen: 10, Bins: []uint64{1000}},
		"ctgB":       &bincounter.Counter{BlockSize: 10, SeqLen: 10, Bins: []uint64{1000}},
		"ctgC":       &bincounter.Counter{BlockSize: 10, SeqLen: 10, Bins: []uint64{1000}},
		"ctgD":       &bincounter.Counter{BlockSize: 10, SeqLen: 10, Bins: []uint64{1000}},
		"ctgE":       &bincounter.Counter{BlockSize: 10, SeqLen: 10, Bins: []uint64{1000}},
		"ctgMissing": &bincounter.Counter{BlockSize: 10, SeqLen: 10, Bins: []uint64{500}},
	}
	out, err := gcnorm.Normalize(ct, idx, 10, rc)
	require.NoError(t, err)
	require.Contains(t, out, "ctgMissing")
	assert.Equal(t, -1.0, out["ctgMissing"].Bins[0])
}

// TestNormalizeFailsWithFewerThanThreeGCClasses covers spec 9(a): a GC
// model with fewer than 3 distinct populated GC classes cannot be fit and
// the whole normalisation fails rather than silently passing through
// undefined coverage.
func TestNormalizeFailsWithFewerThanThreeGCClasses(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref.fa")
	require.NoError(t, os.WriteFile(refPath, []byte(">ctgA\nGAAAAAAAAA\n"), 0o644))
	contigsPath := filepath.Join(dir, "contigs.txt")
	require.NoError(t, os.WriteFile(contigsPath, []byte("ctgA\n"), 0o644))

	ctx := vcontext.Background()
	ct, err := contigtable.Read(ctx, contigsPath)
	require.NoError(t, err)
	idx, err := gcindex.Build(ctx, refPath, ct, 10, 1)
	require.NoError(t, err)

	rc := scheduler.RawCounts{
		"ctgA": &bincounter.Counter{BlockSize: 10, SeqLen: 10, Bins: []uint64{500}},
	}
	_, err = gcnorm.Normalize(ct, idx, 10, rc)
	require.Error(t, err)
}
