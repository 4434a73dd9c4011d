// Package fasta contains code for parsing an indexed FASTA file. See
// http://www.htslib.org/doc/faidx.html. FASTA files consist of a number of
// named sequences that may be interrupted by newlines. For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'. Any text appearing after a space is
// ignored. For example, '>chr1 A viral sequence' becomes 'chr1'.
//
// Only indexed, random-access reading is implemented here: the reference
// collaborator (refseq) never needs to hold a whole genome in memory, and
// gcindex's unindexed fallback reads the raw FASTA stream itself rather
// than going through this package, so no in-memory/eager reader is kept.
package fasta

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.
type Fasta interface {
	// Get returns a substring of the given sequence name at the given
	// coordinates, which are treated as a 0-based half-open interval
	// [start, end). Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)
}
