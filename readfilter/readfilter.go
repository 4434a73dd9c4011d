// Package readfilter implements per-record admissibility filtering for
// aligned reads, ahead of bin counting (spec 4.2).
package readfilter

import "github.com/grailbio/hts/sam"

// forbidFlags is the mask that is always rejected, regardless of
// configuration: unmapped, secondary, supplementary or QC-failed records
// never contribute to coverage.
const forbidFlags = sam.Unmapped | sam.Secondary | sam.Supplementary | sam.QCFail

// prevPos identifies the previous accepted read for duplicate detection.
// For unpaired reads matePos is unused; for paired reads it distinguishes
// reads at the same (tid, pos) with different mates.
type prevPos struct {
	tid, pos, matePos int
	havePaired        bool
	valid             bool
}

// Filter is configured once per run and is not safe for concurrent use: it
// carries per-worker duplicate-detection state, assuming position-sorted
// input (spec: "the spec does not attempt software dedup of unsorted
// input").
type Filter struct {
	MinMAPQ        byte
	MinBaseQual    byte
	HasLenBand     bool
	MinTemplateLen int
	MaxTemplateLen int
	KeepDuplicates bool
	IgnoreDupFlag  bool

	unpairedForbid sam.Flags
	pairedForbid   sam.Flags
	last           prevPos
}

// New builds a Filter. forbidFlags always includes Unmapped|Secondary|
// Supplementary|QCFail; Duplicate is added unless duplicates are being kept
// or the duplicate flag is explicitly ignored. The paired mask additionally
// forbids MateUnmapped.
func New(minMAPQ, minBaseQual byte, hasLenBand bool, minLen, maxLen int, keepDuplicates, ignoreDupFlag bool) *Filter {
	f := &Filter{
		MinMAPQ:        minMAPQ,
		MinBaseQual:    minBaseQual,
		HasLenBand:     hasLenBand,
		MinTemplateLen: minLen,
		MaxTemplateLen: maxLen,
		KeepDuplicates: keepDuplicates,
		IgnoreDupFlag:  ignoreDupFlag,
	}
	f.unpairedForbid = sam.Flags(forbidFlags)
	if !(ignoreDupFlag || keepDuplicates) {
		f.unpairedForbid |= sam.Duplicate
	}
	f.pairedForbid = f.unpairedForbid | sam.MateUnmapped
	return f
}

// Pass reports whether rec is admissible. Paired records are checked by the
// paired rules, unpaired records by the unpaired rules.
func (f *Filter) Pass(rec *sam.Record) bool {
	if rec.MapQ < f.MinMAPQ {
		return false
	}
	if rec.Flags&sam.Paired == 0 {
		return f.passUnpaired(rec)
	}
	return f.passPaired(rec)
}

func (f *Filter) passUnpaired(rec *sam.Record) bool {
	if rec.Flags&f.unpairedForbid != 0 {
		return false
	}
	if f.KeepDuplicates {
		return true
	}
	p := prevPos{tid: rec.RefID(), pos: rec.Pos, valid: true}
	if f.last.valid && f.last == p {
		return false
	}
	f.last = p
	return true
}

func (f *Filter) passPaired(rec *sam.Record) bool {
	if rec.Flags&f.pairedForbid != 0 || rec.Flags&sam.ProperPair == 0 {
		return false
	}
	// Exactly one of {this read REVERSE, mate REVERSE}: a forward/reverse
	// pair on opposite strands.
	thisRev := rec.Flags&sam.Reverse != 0
	mateRev := rec.Flags&sam.MateReverse != 0
	if thisRev == mateRev {
		return false
	}
	if !f.KeepDuplicates {
		matePos := -1
		if rec.MateRef != nil {
			matePos = rec.MatePos
		}
		p := prevPos{tid: rec.RefID(), pos: rec.Pos, matePos: matePos, havePaired: true, valid: true}
		if f.last.valid && f.last == p {
			return false
		}
		f.last = p
	}
	if f.HasLenBand {
		tlen := rec.TempLen
		if tlen < 0 {
			tlen = -tlen
		}
		if tlen < f.MinTemplateLen || tlen > f.MaxTemplateLen {
			return false
		}
	}
	return true
}
