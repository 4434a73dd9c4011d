package region_test

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heathsc/lbtools/region"
)

func TestParseRangesSingle(t *testing.T) {
	rs, err := region.ParseRanges("100-200")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, region.Range{Start: 100, End: 200}, rs[0])
}

func TestParseRangesThousandsSeparator(t *testing.T) {
	rs, err := region.ParseRanges("1,000-2,000")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, region.Range{Start: 1000, End: 2000}, rs[0])
}

func TestParseRangesColonSeparator(t *testing.T) {
	rs, err := region.ParseRanges("5:10")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, region.Range{Start: 5, End: 10}, rs[0])
}

func TestParseRangesMergesOverlapping(t *testing.T) {
	rs, err := region.ParseRanges("100-200,150-300,500-600")
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, region.Range{Start: 100, End: 300}, rs[0])
	assert.Equal(t, region.Range{Start: 500, End: 600}, rs[1])
}

func TestParseRangesMergesOverlappingUnordered(t *testing.T) {
	rs, err := region.ParseRanges("500-600, 100-200, 150-550")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, region.Range{Start: 100, End: 600}, rs[0])
}

func TestParseRangesRejectsBackwardsRange(t *testing.T) {
	_, err := region.ParseRanges("200-100")
	assert.Error(t, err)
}

func TestParseRangesRejectsEmpty(t *testing.T) {
	_, err := region.ParseRanges("")
	assert.Error(t, err)
}

func TestOverlapsWithHalfWindow(t *testing.T) {
	r := region.Region{Ranges: []region.Range{{Start: 100, End: 200}}}
	assert.True(t, r.Overlaps(150, 0))
	assert.True(t, r.Overlaps(95, 10))
	assert.False(t, r.Overlaps(80, 10))
	assert.True(t, r.Overlaps(205, 10))
	assert.False(t, r.Overlaps(300, 10))
}

func TestReadParsesRegionList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.txt")
	content := "amplified region\tchr1\t1,000-2,000\t2\n" +
		"no delta\tchr2\t500-600\n" +
		"\n" +
		"malformed line with one field\n"

	ctx := vcontext.Background()
	f, err := file.Create(ctx, path)
	require.NoError(t, err)
	_, err = f.Writer(ctx).Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close(ctx))

	regions, err := region.Read(ctx, path)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "amplified region", regions[0].Desc)
	assert.Equal(t, "chr1", regions[0].Contig)
	assert.Equal(t, 2, regions[0].DeltaCN)
	assert.True(t, regions[0].HasDelta)
	require.Len(t, regions[0].Ranges, 1)
	assert.Equal(t, region.Range{Start: 1000, End: 2000}, regions[0].Ranges[0])

	assert.Equal(t, "no delta", regions[1].Desc)
	assert.False(t, regions[1].HasDelta)
}
