// Package contigtable implements the contig identity table: contigs of
// interest are read once from a list file and thereafter referred to by a
// small integer handle shared by every other package, rather than by
// repeated string comparison or a reference-counted name.
package contigtable

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// ID is an opaque handle identifying a contig within a Table. It is cheap
// to copy, compare and use as a map key, and stays stable for the lifetime
// of the Table that produced it.
type ID int

// Contig describes one reference sequence of interest.
type Contig struct {
	Name                string
	UseForNormalization bool
}

// Table is the read-only, interned set of contigs of interest for a run.
// Built once from the contig list file; safe for concurrent read access by
// every worker thereafter.
type Table struct {
	contigs []Contig
	byName  map[string]ID
}

// Len returns the number of contigs in the table.
func (t *Table) Len() int { return len(t.contigs) }

// Name returns the name of the contig with handle id.
func (t *Table) Name(id ID) string { return t.contigs[id].Name }

// UseForNormalization reports whether the contig with handle id should
// contribute to GC normalisation (spec: "typically set for autosomes
// only").
func (t *Table) UseForNormalization(id ID) bool { return t.contigs[id].UseForNormalization }

// Lookup returns the handle for a contig name, and whether it was found.
func (t *Table) Lookup(name string) (ID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// All returns the handles for every contig in the table, in list-file
// order.
func (t *Table) All() []ID {
	ids := make([]ID, len(t.contigs))
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// parseBool accepts the token set used throughout the pipeline's
// tab-separated input files: 0/1, no/yes, false/true, case-insensitive.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true":
		return true, nil
	case "0", "no", "false":
		return false, nil
	default:
		return false, errors.Errorf("not a recognised boolean token: %q", s)
	}
}

// Read parses a contig list file: each line is either a bare contig name
// (UseForNormalization defaults to true) or a name and a boolean flag
// separated by a tab. Blank lines are skipped.
func Read(ctx context.Context, path string) (*Table, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "opening contig list", path)
	}
	defer f.Close(ctx) // nolint: errcheck

	t := &Table{byName: map[string]ID{}}
	sc := bufio.NewScanner(f.Reader(ctx))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		name := strings.TrimSpace(fields[0])
		if name == "" {
			continue
		}
		use := true
		if len(fields) > 1 && strings.TrimSpace(fields[1]) != "" {
			use, err = parseBool(fields[1])
			if err != nil {
				return nil, errors.E(err, "parsing contig list", path, "line", strconv.Itoa(lineNo))
			}
		}
		if _, dup := t.byName[name]; dup {
			continue
		}
		t.byName[name] = ID(len(t.contigs))
		t.contigs = append(t.contigs, Contig{Name: name, UseForNormalization: use})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, "reading contig list", path)
	}
	return t, nil
}
