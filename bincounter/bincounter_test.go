package bincounter_test

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heathsc/lbtools/bincounter"
)

func matchCigar(n int) sam.Cigar {
	return sam.Cigar{sam.NewCigarOp(sam.CigarMatch, n)}
}

func TestAddUnpairedReadCoversItsInterval(t *testing.T) {
	c := bincounter.New(1000, 100)
	rec := &sam.Record{
		Pos:   10,
		Cigar: matchCigar(20),
		Qual:  make([]byte, 20), // set to quality 40 below
	}
	for i := range rec.Qual {
		rec.Qual[i] = 40
	}
	c.Add(rec, 0)
	require.Len(t, c.Bins, 10)
	assert.Equal(t, uint64(20), c.Bins[0])
}

func TestAddAppliesBaseQualityFilter(t *testing.T) {
	c := bincounter.New(1000, 100)
	qual := make([]byte, 20)
	for i := range qual {
		qual[i] = 10
	}
	qual[5] = 2 // below threshold
	rec := &sam.Record{Pos: 0, Cigar: matchCigar(20), Qual: qual}
	c.Add(rec, 5)
	assert.Equal(t, uint64(19), c.Bins[0])
}

func TestAddProperPairNonOverlappingMatesCountedOnce(t *testing.T) {
	// Forward mate [0,20), reverse mate [30,50): the mates do not overlap,
	// so each record counts its own bases and nothing is counted twice.
	c := bincounter.New(1000, 100)
	fwd := &sam.Record{
		Pos:     0,
		Cigar:   matchCigar(20),
		Flags:   sam.Paired | sam.ProperPair | sam.MateReverse,
		MatePos: 30,
		Qual:    make([]byte, 20),
	}
	rev := &sam.Record{
		Pos:     30,
		Cigar:   matchCigar(20),
		Flags:   sam.Paired | sam.ProperPair | sam.Reverse,
		MatePos: 0,
		Qual:    make([]byte, 20),
	}
	for i := range fwd.Qual {
		fwd.Qual[i] = 40
	}
	for i := range rev.Qual {
		rev.Qual[i] = 40
	}
	c.Add(fwd, 0)
	c.Add(rev, 0)
	var total uint64
	for _, b := range c.Bins {
		total += b
	}
	// fwd contributes [0,20), rev contributes [30,50): 40 bases total, no
	// overlap to double-count since the mates don't overlap here.
	assert.Equal(t, uint64(40), total)
}

func TestAddProperPairOverlappingFragmentCountedOnce(t *testing.T) {
	c := bincounter.New(1000, 100)
	// Fragment overlaps: fwd [0,30), rev starts at pos 10, ends at 40.
	fwd := &sam.Record{
		Pos:     0,
		Cigar:   matchCigar(30),
		Flags:   sam.Paired | sam.ProperPair | sam.MateReverse,
		MatePos: 10,
		Qual:    make([]byte, 30),
	}
	rev := &sam.Record{
		Pos:     10,
		Cigar:   matchCigar(30),
		Flags:   sam.Paired | sam.ProperPair | sam.Reverse,
		MatePos: 0,
		Qual:    make([]byte, 30),
	}
	for i := range fwd.Qual {
		fwd.Qual[i] = 40
	}
	for i := range rev.Qual {
		rev.Qual[i] = 40
	}
	c.Add(fwd, 0)
	c.Add(rev, 0)
	var total uint64
	for _, b := range c.Bins {
		total += b
	}
	// Union of [0,30) and [10,40) is [0,40): 40 bases, not 60.
	assert.Equal(t, uint64(40), total)
}

func TestAddProperPairDovetailedFragmentCountedOnce(t *testing.T) {
	// Dovetailed/"outie" pair: the reverse mate starts to the left of the
	// forward record's own start (mate_pos < pos). The forward (+strand)
	// record must defer its whole claim to the reverse record rather than
	// counting [pos,end) in addition to the reverse record's [mate_pos,end).
	c := bincounter.New(1000, 100)
	fwd := &sam.Record{
		Pos:     20,
		Cigar:   matchCigar(30),
		Flags:   sam.Paired | sam.ProperPair | sam.MateReverse,
		MatePos: 10,
		Qual:    make([]byte, 30),
	}
	rev := &sam.Record{
		Pos:     10,
		Cigar:   matchCigar(30),
		Flags:   sam.Paired | sam.ProperPair | sam.Reverse,
		MatePos: 20,
		Qual:    make([]byte, 30),
	}
	for i := range fwd.Qual {
		fwd.Qual[i] = 40
	}
	for i := range rev.Qual {
		rev.Qual[i] = 40
	}
	c.Add(fwd, 0)
	c.Add(rev, 0)
	var total uint64
	for _, b := range c.Bins {
		total += b
	}
	// rev (mate to its right) claims [mate_pos,end) = [20,40): 20 bases.
	// fwd's claim truncates to empty since mate_pos (10) < its own pos (20).
	assert.Equal(t, uint64(20), total)
}

func TestDisjointDetectsMisflaggedProperPair(t *testing.T) {
	rec := &sam.Record{
		Pos:     0,
		Cigar:   matchCigar(5),
		Flags:   sam.Paired | sam.ProperPair,
		MatePos: 100,
	}
	assert.True(t, bincounter.Disjoint(rec))
}

func TestDisjointFalseForOverlappingPair(t *testing.T) {
	rec := &sam.Record{
		Pos:     0,
		Cigar:   matchCigar(50),
		Flags:   sam.Paired | sam.ProperPair,
		MatePos: 10,
	}
	assert.False(t, bincounter.Disjoint(rec))
}

func TestDisjointFalseForUnpaired(t *testing.T) {
	rec := &sam.Record{Pos: 0, Cigar: matchCigar(5)}
	assert.False(t, bincounter.Disjoint(rec))
}
