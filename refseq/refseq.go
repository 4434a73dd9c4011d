// Package refseq is the reference-FASTA collaborator named in the
// specification: it knows how to open a reference, and whether it supports
// random access (a ".fai"-style sidecar index), without knowing anything
// about GC content or bins. GcIndex builds on top of it.
package refseq

import (
	"context"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"

	"github.com/heathsc/lbtools/encoding/fasta"
)

// IndexPath returns the conventional sidecar index path for a FASTA file.
func IndexPath(fastaPath string) string { return fastaPath + ".fai" }

// HasIndex reports whether the conventional sidecar index exists next to
// fastaPath. This is the "index probe" of spec 4.1/4.4: its result decides
// whether GcIndex can parallelise per-contig (the scheduler probes the
// alignment index with alignment.HasIndex instead).
func HasIndex(fastaPath string) bool {
	_, err := os.Stat(IndexPath(fastaPath))
	return err == nil
}

// OpenIndexed opens an indexed, random-access view of the reference. The
// underlying file must support seeking (transparent decompression is not
// available on this path, matching faidx semantics: indexed FASTA access
// requires an uncompressed or bgzf-indexable file).
func OpenIndexed(fastaPath string) (fasta.Fasta, func() error, error) {
	f, err := os.Open(fastaPath)
	if err != nil {
		return nil, nil, errors.E(err, "opening reference", fastaPath)
	}
	idx, err := os.Open(IndexPath(fastaPath))
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, nil, errors.E(err, "opening reference index", IndexPath(fastaPath))
	}
	defer idx.Close() // nolint: errcheck

	fa, err := fasta.NewIndexed(f, idx)
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, nil, errors.E(err, "parsing reference index", IndexPath(fastaPath))
	}
	return fa, f.Close, nil
}

// StreamReader opens the reference for a single sequential scan, with
// transparent decompression based on the file extension (spec 6).
func StreamReader(ctx context.Context, fastaPath string) (file.File, error) {
	f, err := file.Open(ctx, fastaPath)
	if err != nil {
		return nil, errors.E(err, "opening reference", fastaPath)
	}
	return f, nil
}
