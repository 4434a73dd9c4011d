// Package alignment opens SAM/BAM input and dispatches records to readers,
// following the same "recordReader" idiom the teacher's sort tool uses so
// that callers never care whether the underlying file was SAM or BAM.
package alignment

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// RecordReader is implemented by both the BAM and SAM readers, letting
// callers iterate without caring which format they opened.
type RecordReader interface {
	Header() *sam.Header
	Read() (*sam.Record, error)
}

// Source is an open alignment file plus the means to close its underlying
// handle.
type Source struct {
	RecordReader
	close func() error
}

// Close releases the underlying file handle.
func (s *Source) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open opens a SAM or BAM file by path, choosing the format by file
// extension (".sam" vs everything else, treated as BAM).
func Open(ctx context.Context, path string) (*Source, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "opening alignment file", path)
	}
	r := f.Reader(ctx)

	if strings.HasSuffix(path, ".sam") {
		sr, err := sam.NewReader(r)
		if err != nil {
			f.Close(ctx) // nolint: errcheck
			return nil, errors.E(err, "parsing SAM header", path)
		}
		return &Source{RecordReader: sr, close: func() error { return f.Close(ctx) }}, nil
	}

	br, err := bam.NewReader(r, runtime.NumCPU())
	if err != nil {
		f.Close(ctx) // nolint: errcheck
		return nil, errors.E(err, "parsing BAM header", path)
	}
	return &Source{
		RecordReader: br,
		close: func() error {
			br.Close() // nolint: errcheck
			return f.Close(ctx)
		},
	}, nil
}

// ForEach reads every record from src and invokes fn, stopping at the first
// error fn returns or at end of stream.
func ForEach(src *Source, fn func(*sam.Record) error) error {
	for {
		rec, err := src.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.E(err, "reading alignment record")
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// RefLen returns the length, in bases, of the named reference as declared
// in the alignment file's header, or false if the reference is unknown to
// the header.
func RefLen(h *sam.Header, name string) (int, bool) {
	for _, ref := range h.Refs() {
		if ref.Name() == name {
			return ref.Len(), true
		}
	}
	return 0, false
}

// IndexPath returns the conventional BAI sidecar path for a BAM file.
func IndexPath(path string) string { return path + ".bai" }

// HasIndex reports whether the conventional BAI sidecar exists next to
// path; this is the scheduler's "index probe" (spec 4.4) on the alignment
// side, the counterpart of refseq.HasIndex on the reference side.
func HasIndex(path string) bool {
	_, err := os.Stat(IndexPath(path))
	return err == nil
}

// Indexed is a BAM file opened for random, per-contig access: it requires
// a seekable handle, so (unlike Open/Source) it always opens the file
// directly rather than through file.Open's transparent-decompression
// layer, matching faidx-style indexed access semantics (refseq.OpenIndexed
// does the same for the reference).
type Indexed struct {
	f      *os.File
	reader *bam.Reader
	index  *bam.Index
}

// OpenIndexed opens path and its BAI sidecar for indexed, per-contig
// access.
func OpenIndexed(path string) (*Indexed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(err, "opening alignment file", path)
	}
	r, err := bam.NewReader(f, runtime.NumCPU())
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, errors.E(err, "parsing BAM header", path)
	}
	idxPath := IndexPath(path)
	idxFile, err := os.Open(idxPath)
	if err != nil {
		r.Close() // nolint: errcheck
		f.Close()  // nolint: errcheck
		return nil, errors.E(err, "opening BAM index", idxPath)
	}
	defer idxFile.Close() // nolint: errcheck
	idx, err := bam.ReadIndex(idxFile)
	if err != nil {
		r.Close() // nolint: errcheck
		f.Close()  // nolint: errcheck
		return nil, errors.E(err, "parsing BAM index", idxPath)
	}
	return &Indexed{f: f, reader: r, index: idx}, nil
}

// Header returns the alignment file's header.
func (x *Indexed) Header() *sam.Header { return x.reader.Header() }

// Close releases the underlying file handle.
func (x *Indexed) Close() error {
	x.reader.Close() // nolint: errcheck
	return x.f.Close()
}

// ForEachInContig visits every record overlapping the named contig's full
// length, in index order, stopping at the first error fn returns.
func (x *Indexed) ForEachInContig(name string, fn func(*sam.Record) error) error {
	var ref *sam.Reference
	for _, r := range x.reader.Header().Refs() {
		if r.Name() == name {
			ref = r
			break
		}
	}
	if ref == nil {
		return errors.Errorf("contig %q not present in alignment file header", name)
	}
	chunks, err := x.index.Chunks(ref, 0, ref.Len())
	if err != nil {
		// No chunks for this reference (e.g. no reads ever aligned to it)
		// is not an error: the contig simply contributes all-zero bins.
		return nil
	}
	it, err := bam.NewIterator(x.reader, chunks)
	if err != nil {
		return errors.E(err, "creating BAM iterator", name)
	}
	defer it.Close() // nolint: errcheck
	for it.Next() {
		if err := fn(it.Record()); err != nil {
			return err
		}
	}
	return it.Close()
}
