// Package bincounter accumulates filtered base coverage into fixed-size
// bins for one (sample, contig) pair, applying the fragment-aware interval
// partitioning described in spec 4.2 so that a properly paired fragment's
// overlapping bases are counted exactly once.
package bincounter

import (
	"github.com/grailbio/hts/sam"
)

// Counter holds per-bin coverage counts for one contig of one sample.
type Counter struct {
	BlockSize int
	SeqLen    int
	Bins      []uint64
}

// New allocates a Counter sized to cover a contig of the given length.
func New(seqLen, blockSize int) *Counter {
	n := (seqLen + blockSize - 1) / blockSize
	return &Counter{BlockSize: blockSize, SeqLen: seqLen, Bins: make([]uint64, n)}
}

// Add determines the counted interval [x, y) on the reference for an
// accepted record and increments the bins it covers, applying the base
// quality filter per position. minQual is the minimum acceptable base
// quality.
func (c *Counter) Add(rec *sam.Record, minQual byte) {
	x, y, ok := countedInterval(rec)
	if !ok {
		return
	}
	if y > c.SeqLen {
		y = c.SeqLen
	}
	if y <= x {
		return
	}
	readStart := rec.Pos
	qual := rec.Qual
	for pos := x; pos < y; pos++ {
		qi := pos - readStart
		if qi < 0 || qi >= len(qual) {
			// Position falls outside the sequenced bases covered by qual
			// (can happen for the mate-derived portion of a pair interval);
			// such bases are still counted, matching the original's
			// coverage-by-interval semantics which does not require a
			// quality byte from this particular read for every position.
			c.bump(pos)
			continue
		}
		if qual[qi] >= minQual {
			c.bump(pos)
		}
	}
}

func (c *Counter) bump(pos int) {
	i := pos / c.BlockSize
	if i >= 0 && i < len(c.Bins) {
		c.Bins[i]++
	}
}

// countedInterval implements the exact fragment partitioning of spec 4.2.
func countedInterval(rec *sam.Record) (x, y int, ok bool) {
	end := rec.End() // Record.End() is already the exclusive reference bound.
	pos := rec.Pos

	if rec.Flags&sam.Paired == 0 || rec.Flags&sam.ProperPair == 0 {
		return pos, end, true
	}

	matePos := rec.MatePos
	if rec.Flags&sam.MateReverse != 0 {
		// This record is on the + strand (mate is the reverse one): count
		// only up to where the mate begins, excluding bases the mate will
		// claim. A dovetailed mate (matePos < pos) truncates this to an
		// empty interval, deferring the whole overlap to the - strand
		// record handled below, rather than counting it twice.
		y := end
		if matePos < y {
			y = matePos
		}
		return pos, y, true
	}

	// This record is on the - strand. Its + mate, handled above, always
	// truncates its own claim at or before this record's start, so this
	// record is free to count its whole aligned interval.
	if matePos < pos {
		return pos, end, true
	}
	if matePos > pos {
		if end < matePos {
			// Disjoint: misflagged proper-pair. Skip with a warning left to
			// the caller (bincounter stays pure with respect to logging).
			return 0, 0, false
		}
		return matePos, end, true
	}
	// matePos == pos: degenerate overlap, count the whole read.
	return pos, end, true
}

// Disjoint reports whether rec would be skipped as a misflagged proper pair
// (mate to the right but the two reads don't overlap), so callers can emit
// the warning spec 4.2 calls for without duplicating the interval logic.
func Disjoint(rec *sam.Record) bool {
	if rec.Flags&sam.Paired == 0 || rec.Flags&sam.ProperPair == 0 {
		return false
	}
	if rec.Flags&sam.MateReverse != 0 {
		return false
	}
	matePos := rec.MatePos
	end := rec.End()
	return matePos > rec.Pos && end < matePos
}
