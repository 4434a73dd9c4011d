// Package gcindex builds the GC-content index: a per-contig vector
// classifying each fixed-size bin of the reference by its GC fraction, used
// downstream by the GC normaliser.
package gcindex

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/heathsc/lbtools/contigtable"
	"github.com/heathsc/lbtools/encoding/fasta"
	"github.com/heathsc/lbtools/refseq"
)

// nGCBins is the number of distinct GC classes a bin can be assigned to.
const nGCBins = 100

// minGCFraction is the fraction of called (AT+GC) bases a bin needs to
// receive a GC class at all; below it, the bin's class is undefined.
const minGCFraction = 0.9

// baseClass classifies a reference base, case-insensitively: 0 = other
// (including N/ambiguity codes), 1 = A/T, 2 = G/C.
var baseClass [256]byte

func init() {
	for _, b := range []byte("Aa") {
		baseClass[b] = 1
	}
	for _, b := range []byte("Tt") {
		baseClass[b] = 1
	}
	for _, b := range []byte("Gg") {
		baseClass[b] = 2
	}
	for _, b := range []byte("Cc") {
		baseClass[b] = 2
	}
}

// ContigData is the immutable, per-contig result: a GC class (or undefined)
// for every block_size-bp bin.
type ContigData struct {
	Bins []int // -1 means undefined ("None" in spec terms)
}

// GCBin returns the GC class of the bin containing position pos (0-based),
// and whether it is defined.
func (c *ContigData) GCBin(pos, blockSize uint64) (int, bool) {
	i := int(pos / blockSize)
	if i < 0 || i >= len(c.Bins) || c.Bins[i] < 0 {
		return 0, false
	}
	return c.Bins[i], true
}

// Index is the read-only, per-contig GC classification shared by every
// worker for the remainder of a run.
type Index struct {
	BlockSize uint64
	contigs   map[string]*ContigData
}

func (idx *Index) Lookup(name string) (*ContigData, bool) {
	c, ok := idx.contigs[name]
	return c, ok
}

// builder accumulates (other, AT, GC) counters for the bin currently in
// progress, and emits a classified bin on every block boundary.
type builder struct {
	blockSize uint64
	pos       uint64
	counts    [3]uint32 // indexed by baseClass value: other, AT, GC
	bins      []int
}

func newBuilder(blockSize uint64) *builder {
	return &builder{blockSize: blockSize}
}

func (b *builder) addBase(c byte) {
	b.counts[baseClass[c]]++
	b.pos++
	if b.pos%b.blockSize == 0 {
		b.emit()
	}
}

func (b *builder) addSeq(seq []byte) {
	for _, c := range seq {
		b.addBase(c)
	}
}

func (b *builder) emit() {
	at, gc := b.counts[1], b.counts[2]
	total := at + gc
	if float64(total) >= minGCFraction*float64(b.blockSize) {
		bin := int(float64(gc) / float64(total) * 100)
		if bin > 99 {
			bin = 99
		}
		b.bins = append(b.bins, bin)
	} else {
		b.bins = append(b.bins, -1)
	}
	b.counts = [3]uint32{}
}

// finish flushes a final, possibly partial, bin at end-of-contig.
func (b *builder) finish() *ContigData {
	if b.pos%b.blockSize != 0 {
		b.emit()
	}
	return &ContigData{Bins: b.bins}
}

// Build produces a GC Index for every contig in the table, from reference
// path, using parallel per-contig random access when a sidecar index is
// available, otherwise falling back to a single streaming scan (spec 4.1).
func Build(ctx context.Context, referencePath string, contigs *contigtable.Table, blockSize uint64, threads int) (*Index, error) {
	if refseq.HasIndex(referencePath) {
		return buildIndexed(referencePath, contigs, blockSize, threads)
	}
	return buildStreaming(ctx, referencePath, contigs, blockSize)
}

// buildIndexed fans contig names out across threads worker goroutines, each
// of which fetches its contig's full sequence through its own indexed
// handle and scans it locally. The first error observed aborts the run.
func buildIndexed(referencePath string, contigs *contigtable.Table, blockSize uint64, threads int) (*Index, error) {
	if threads < 1 {
		threads = 1
	}
	names := make(chan string, contigs.Len())
	for _, id := range contigs.All() {
		names <- contigs.Name(id)
	}
	close(names)

	var (
		mu      sync.Mutex
		results = make(map[string]*ContigData)
		once    errors.Once
		wg      sync.WaitGroup
	)
	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fa, closeFn, err := refseq.OpenIndexed(referencePath)
			if err != nil {
				once.Set(errors.E(err, "opening indexed reference"))
				return
			}
			defer closeFn() // nolint: errcheck

			for name := range names {
				length, lenErr := fa.Len(name)
				if lenErr != nil {
					log.Error.Printf("gcindex: contig %s absent from reference, skipping", name)
					continue
				}
				cd, err := scanIndexedContig(fa, name, length, blockSize)
				if err != nil {
					once.Set(errors.E(err, "building GC index", name))
					return
				}
				mu.Lock()
				results[name] = cd
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if err := once.Err(); err != nil {
		return nil, err
	}
	return &Index{BlockSize: blockSize, contigs: results}, nil
}

func scanIndexedContig(fa fasta.Fasta, name string, length, blockSize uint64) (*ContigData, error) {
	seq, err := fa.Get(name, 0, length)
	if err != nil {
		return nil, errors.E(err, "reading contig sequence", name)
	}
	b := newBuilder(blockSize)
	b.addSeq([]byte(seq))
	return b.finish(), nil
}

// buildStreaming scans the reference once, switching the active contig on
// every '>' header line and discarding bases of contigs that are not in the
// target set, so that the whole genome never needs to fit in memory.
func buildStreaming(ctx context.Context, referencePath string, contigs *contigtable.Table, blockSize uint64) (*Index, error) {
	f, err := refseq.StreamReader(ctx, referencePath)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx) // nolint: errcheck

	wanted := make(map[string]bool, contigs.Len())
	for _, id := range contigs.All() {
		wanted[contigs.Name(id)] = true
	}

	results := make(map[string]*ContigData)
	var (
		curName    string
		curBuilder *builder
		curWanted  bool
	)
	flush := func() {
		if curBuilder != nil && curWanted {
			results[curName] = curBuilder.finish()
		}
	}

	sc := bufio.NewScanner(f.Reader(ctx))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			curName = strings.Split(line[1:], " ")[0]
			curWanted = wanted[curName]
			curBuilder = newBuilder(blockSize)
			continue
		}
		if curWanted {
			curBuilder.addSeq([]byte(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, "scanning reference", referencePath)
	}
	flush()

	for name := range wanted {
		if _, ok := results[name]; !ok {
			log.Error.Printf("gcindex: contig %s absent from reference, skipping", name)
		}
	}
	return &Index{BlockSize: blockSize, contigs: results}, nil
}

// missingReference is a sentinel used by callers (cmd/lb-predict-cn etc) to
// distinguish a fatal "no such reference file" from a per-contig warning.
func missingReference(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.E(err, "reference file not found", path)
	}
	return nil
}

// CheckReference verifies the reference file itself exists; absence is
// fatal (spec 4.1 "missing reference -> fatal"), unlike a missing
// individual contig which is only a warning.
func CheckReference(path string) error { return missingReference(path) }
