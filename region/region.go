// Package region implements the region list: user-declared genomic ranges
// to be tested, along with an optional expected copy-number delta.
package region

import (
	"bufio"
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Range is a closed integer interval [Start, End], Start <= End.
type Range struct {
	Start, End int
}

// Region is one row of the region list.
type Region struct {
	Desc     string
	Contig   string
	Ranges   []Range
	DeltaCN  int
	HasDelta bool
}

var rangeRe = regexp.MustCompile(`^\s*([0-9,]+)\s*[-:]\s*([0-9,]+)\s*$`)

func parseUint(s string) (int, error) {
	s = strings.ReplaceAll(s, ",", "")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.E(err, "not a valid integer", s)
	}
	return n, nil
}

func parseSingleRange(s string) (Range, error) {
	m := rangeRe.FindStringSubmatch(s)
	if m == nil {
		return Range{}, errors.Errorf("malformed range %q", s)
	}
	a, err := parseUint(m[1])
	if err != nil {
		return Range{}, err
	}
	b, err := parseUint(m[2])
	if err != nil {
		return Range{}, err
	}
	if b < a {
		return Range{}, errors.Errorf("illegal range %q: end before start", s)
	}
	return Range{Start: a, End: b}, nil
}

// ParseRanges parses a comma-separated list of "a-b" or "a:b" ranges
// (digits may carry comma thousands-separators), then sorts and merges
// overlapping ranges. Ranges are located with a regexp rather than a naive
// split on "," since commas serve double duty as both the range separator
// and a thousands grouping inside a number. A comma followed directly by a
// digit is read as part of the number, so list entries must be separated by
// a comma and whitespace ("100-200, 150-300"); "100-200,150-300" is read
// as "100-200,150" followed by "300".
var rangeTokenRe = regexp.MustCompile(`[0-9,]+\s*[-:]\s*[0-9,]+`)

func ParseRanges(s string) ([]Range, error) {
	tokens := rangeTokenRe.FindAllString(s, -1)
	if len(tokens) == 0 {
		return nil, errors.Errorf("no ranges found in %q", s)
	}
	ranges := make([]Range, 0, len(tokens))
	for _, tok := range tokens {
		r, err := parseSingleRange(tok)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	merged := ranges[:1]
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged, nil
}

// Overlaps reports whether pos (with the given half-window padding on each
// side) overlaps any of the region's ranges, per the "centre +/- half
// bin-spacing" rule in spec 4.6.
func (r *Region) Overlaps(pos, halfWindow int) bool {
	lo, hi := pos-halfWindow, pos+halfWindow
	for _, rg := range r.Ranges {
		if hi > rg.Start && lo <= rg.End {
			return true
		}
	}
	return false
}

// Read parses a region list file: `desc\tcontig\tranges[\tdelta_cn]`.
// Lines with fewer than 3 fields are skipped. delta_cn, if present, is
// parsed as a signed integer; an unparseable trailing field is ignored
// rather than treated as an error (matches the original's tolerant
// parsing).
func Read(ctx context.Context, path string) ([]Region, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "opening region list", path)
	}
	defer f.Close(ctx) // nolint: errcheck

	var regions []Region
	sc := bufio.NewScanner(f.Reader(ctx))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		ranges, err := ParseRanges(fields[2])
		if err != nil {
			return nil, errors.E(err, "region list", path, "line", strconv.Itoa(lineNo))
		}
		reg := Region{
			Desc:   strings.TrimSpace(fields[0]),
			Contig: strings.TrimSpace(fields[1]),
			Ranges: ranges,
		}
		if len(fields) >= 4 {
			if d, err := strconv.Atoi(strings.TrimSpace(fields[3])); err == nil {
				reg.DeltaCN = d
				reg.HasDelta = d != 0
			}
		}
		regions = append(regions, reg)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, "reading region list", path)
	}
	return regions, nil
}
