// Package recompress replaces raster images with JBIG2 encoded bilevel
// versions when that does not make them larger.
//
// An [ImageRecompressor] is a processor.PageProcessor. For every page it
// walks the XObject resources, descending into Form XObjects, and runs
// each image through the imaging pipeline:
//
//	inspect -> decode -> binarize -> encode -> size gate -> commit
//
// Images that are too small, already JBIG2, or cannot be reduced are left
// untouched. A commit swaps in the new payload and dictionary as a whole
// and marks the object modified so that writers pick it up.
package recompress

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"

	"github.com/tsawler/pdfpatch/core"
	"github.com/tsawler/pdfpatch/imaging"
	"github.com/tsawler/pdfpatch/processor"
	"github.com/tsawler/pdfpatch/tracker"
)

// Banner is the name shown for the step.
const Banner = "Optimize bilevel image compression"

// workPerPage is the progress reported for one page.
const workPerPage = 10

// staleKeys no longer describe a JBIG2 payload and are removed on commit.
var staleKeys = []string{
	"K", "EndOfLine", "EncodedByteAlign", "Rows", "EndOfBlock", "BlackIs1",
	"Predictor", "Colors", "Columns", "EarlyChange", "DecodeParms", "Decode",
}

// Options are the user settings of the step.
type Options struct {
	// BinaryThreshold is the gray level below which pixels become black.
	// 0 disables binarization of images that are not already bilevel.
	BinaryThreshold byte

	// Algorithm 255 thresholds plainly; anything else dithers.
	Algorithm byte
}

// DefaultOptions returns the settings used when none are given.
func DefaultOptions() Options {
	return Options{BinaryThreshold: 128, Algorithm: imaging.AlgorithmGreyscale}
}

// Outcome is what happened to one image.
type Outcome int

const (
	Skipped Outcome = iota
	Optimized
	Rejected
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Optimized:
		return "optimized"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Stats counts image outcomes since the last BeginProcess.
type Stats struct {
	Examined  int
	Optimized int
	Rejected  int
	Skipped   int
	Failed    int
}

// ImageRecompressor is the processor.PageProcessor of this package. It is
// safe for concurrent pages.
type ImageRecompressor struct {
	Options

	// Encoder defaults to imaging.DefaultEncoder.
	Encoder imaging.Encoder

	// Verify decodes every encoded payload before committing it.
	Verify bool

	// Language formats the counts of the summary. Defaults to English.
	Language language.Tag

	examined  atomic.Int64
	optimized atomic.Int64
	rejected  atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64

	locks sync.Map // object number -> *sync.Mutex
	tr    tracker.Tracker
}

// New returns a recompressor with the given options and the default
// encoder.
func New(opts Options) *ImageRecompressor {
	return &ImageRecompressor{Options: opts}
}

var _ processor.ConcurrentProcessor = (*ImageRecompressor)(nil)

func (r *ImageRecompressor) Name() string { return Banner }

// ProcessesConcurrently implements processor.ConcurrentProcessor.
func (r *ImageRecompressor) ProcessesConcurrently() {}

// BeginProcess resets the counters.
func (r *ImageRecompressor) BeginProcess(dc *processor.DocContext) error {
	r.examined.Store(0)
	r.optimized.Store(0)
	r.rejected.Store(0)
	r.skipped.Store(0)
	r.failed.Store(0)
	r.locks.Clear()
	r.tr = dc.Tracker
	return nil
}

// Stats returns the current counters.
func (r *ImageRecompressor) Stats() Stats {
	return Stats{
		Examined:  int(r.examined.Load()),
		Optimized: int(r.optimized.Load()),
		Rejected:  int(r.rejected.Load()),
		Skipped:   int(r.skipped.Load()),
		Failed:    int(r.failed.Load()),
	}
}

// Process recompresses the images reachable from the page resources. It
// reports true when at least one image was replaced, not merely when the
// page has XObjects. Codec failures are returned together after every
// image of the page has been tried.
func (r *ImageRecompressor) Process(pc *processor.PageContext) (bool, error) {
	if err := pc.Context().Err(); err != nil {
		return false, err
	}
	pc.Tracker.IncrementProgress(workPerPage)

	res, err := pc.Page.Resources()
	if err != nil {
		return false, nil
	}
	xobjects, ok := core.Locate(pc.Doc, res, "XObject")
	if !ok {
		return false, nil
	}

	var errs []error
	changed := r.walk(pc, xobjects, nil, &errs)
	return changed, errors.Join(errs...)
}

// walk visits the entries of an XObject dictionary. path holds the object
// numbers of the forms being descended through.
func (r *ImageRecompressor) walk(pc *processor.PageContext, xobjects core.Dict, path []int, errs *[]error) bool {
	changed := false
	for _, key := range xobjects.Keys() {
		ref, ok := xobjects[key].(core.IndirectRef)
		if !ok {
			continue
		}
		obj, err := pc.Doc.ResolveReference(ref)
		if err != nil {
			continue
		}
		s, ok := obj.(*core.Stream)
		if !ok {
			continue
		}

		switch r.subtype(pc.Doc, ref.Number, s) {
		case "Image":
			outcome, err := r.processImage(pc, ref.Number, s)
			if err != nil {
				*errs = append(*errs, fmt.Errorf("image %s (object %d): %w", key, ref.Number, err))
			}
			changed = changed || outcome == Optimized
		case "Form":
			if containsNum(path, ref.Number) {
				continue
			}
			inner, ok := core.Locate(pc.Doc, s, "Resources", "XObject")
			if !ok {
				continue
			}
			next := append(path[:len(path):len(path)], ref.Number)
			if r.walk(pc, inner, next, errs) {
				changed = true
			}
		}
	}
	return changed
}

func containsNum(path []int, num int) bool {
	for _, n := range path {
		if n == num {
			return true
		}
	}
	return false
}

// subtype reads /Subtype under the object lock, since a commit on another
// page may be swapping the dictionary.
func (r *ImageRecompressor) subtype(doc core.Resolver, num int, s *core.Stream) core.Name {
	mu := r.lock(num)
	mu.Lock()
	defer mu.Unlock()
	n, _ := core.GetName(doc, s.Dict, "Subtype")
	return n
}

// lock returns the mutex guarding object num.
func (r *ImageRecompressor) lock(num int) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(num, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (r *ImageRecompressor) encoder() imaging.Encoder {
	if r.Encoder != nil {
		return r.Encoder
	}
	return imaging.DefaultEncoder()
}

// processImage runs the pipeline for one image stream.
func (r *ImageRecompressor) processImage(pc *processor.PageContext, num int, s *core.Stream) (Outcome, error) {
	mu := r.lock(num)
	mu.Lock()
	defer mu.Unlock()

	r.examined.Add(1)
	info := imaging.Inspect(pc.Doc, s)
	if reason := info.Eligible(); reason != imaging.ReasonNone {
		return r.skip(pc, num, reason), nil
	}

	bm, err := imaging.Decode(pc.Doc, s, info)
	if errors.Is(err, imaging.ErrUnsupported) {
		return r.skip(pc, num, imaging.ReasonUnsupported), nil
	}
	if err != nil {
		return r.fail(pc, num, err), err
	}
	defer bm.Release()

	bits, reason := imaging.Binarize(bm, r.BinaryThreshold, r.Algorithm)
	if reason != imaging.ReasonNone {
		return r.skip(pc, num, reason), nil
	}

	sb, err := r.encoder().Encode(bits)
	if err != nil {
		return r.fail(pc, num, err), err
	}
	if r.Verify {
		if err := imaging.Verify(sb, bits); err != nil {
			return r.fail(pc, num, err), err
		}
	}

	if !imaging.FitsIn(sb, info.Length) {
		r.rejected.Add(1)
		pc.Tracker.TraceMessage(tracker.Debug, "image kept",
			tracker.Int("object", num), tracker.String("outcome", Rejected.String()),
			tracker.Int("length", info.Length), tracker.Int("encoded", len(sb)))
		return Rejected, nil
	}

	if err := commit(s, sb, info.ImageMask); err != nil {
		return r.fail(pc, num, err), err
	}
	pc.Doc.MarkModified(num)
	r.optimized.Add(1)
	pc.Tracker.TraceMessage(tracker.Debug, "image replaced",
		tracker.Int("object", num), tracker.String("outcome", Optimized.String()),
		tracker.Int("length", info.Length), tracker.Int("encoded", len(sb)))
	return Optimized, nil
}

func (r *ImageRecompressor) skip(pc *processor.PageContext, num int, reason imaging.Reason) Outcome {
	r.skipped.Add(1)
	pc.Tracker.TraceMessage(tracker.Debug, "image kept",
		tracker.Int("object", num), tracker.String("outcome", Skipped.String()),
		tracker.String("reason", reason.String()))
	return Skipped
}

func (r *ImageRecompressor) fail(pc *processor.PageContext, num int, err error) Outcome {
	r.failed.Add(1)
	pc.Tracker.TraceMessage(tracker.Debug, "image kept",
		tracker.Int("object", num), tracker.String("outcome", Failed.String()), tracker.Err(err))
	return Failed
}

// commit rewrites s to hold the JBIG2 payload sb. The new state is built
// on a copy and swapped in at once. Stencil masks keep /ImageMask and get
// no color space.
func commit(s *core.Stream, sb []byte, mask bool) error {
	next := s.Clone()
	if err := next.SetData(sb, false); err != nil {
		return err
	}
	next.Remove(staleKeys...)
	next.Put("Filter", core.FilterJBIG2)
	next.Put("BitsPerComponent", core.Int(1))
	if !mask {
		next.Put("ColorSpace", core.Name("DeviceGray"))
	}
	s.Replace(next)
	return nil
}

// EndProcess reports the totals of the pass. The step never asks for
// another pass.
func (r *ImageRecompressor) EndProcess(processor.Document) bool {
	tr := r.tr
	if tr == nil {
		tr = tracker.Nop{}
	}
	lang := r.Language
	if lang == language.Und {
		lang = language.English
	}
	st := r.Stats()
	tr.TraceMessage(tracker.Notice, Banner)
	tr.TraceMessage(tracker.Notice, fmt.Sprintf("Processed %s images", tracker.Count(lang, st.Examined)))
	tr.TraceMessage(tracker.Notice, fmt.Sprintf("Optimized %s images", tracker.Count(lang, st.Optimized)))
	tr.TraceMessage(tracker.Debug, "image outcomes",
		tracker.Int("rejected", st.Rejected), tracker.Int("skipped", st.Skipped), tracker.Int("failed", st.Failed))
	return false
}

// EstimateWorkload implements processor.PageProcessor.
func (r *ImageRecompressor) EstimateWorkload(doc processor.Document) int {
	n, err := doc.PageCount()
	if err != nil {
		return 0
	}
	return n * workPerPage
}
