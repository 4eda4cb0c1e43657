package processor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tsawler/pdfpatch/core"
	"github.com/tsawler/pdfpatch/pages"
	"github.com/tsawler/pdfpatch/tracker"
)

// fakeDoc is a Document of n empty pages
type fakeDoc struct {
	objects map[int]core.Object
	tree    *pages.PageTree

	mu       sync.Mutex
	modified []int
}

func newFakeDoc(n int) *fakeDoc {
	d := &fakeDoc{objects: make(map[int]core.Object)}
	var kids core.Array
	for i := range n {
		num := 10 + i
		d.objects[num] = core.Dict{"Type": core.Name("Page")}
		kids = append(kids, core.IndirectRef{Number: num})
	}
	d.tree = pages.NewPageTree(core.Dict{"Type": core.Name("Pages"), "Kids": kids}, d)
	return d
}

func (d *fakeDoc) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return d.ResolveReference(ref)
	}
	return obj, nil
}

func (d *fakeDoc) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	obj, ok := d.objects[ref.Number]
	if !ok {
		return nil, core.ErrNotFound
	}
	return obj, nil
}

func (d *fakeDoc) PageCount() (int, error)            { return d.tree.Count() }
func (d *fakeDoc) GetPage(i int) (*pages.Page, error) { return d.tree.GetPage(i) }

func (d *fakeDoc) MarkModified(num int) {
	d.mu.Lock()
	d.modified = append(d.modified, num)
	d.mu.Unlock()
}

// recorder is a processor that remembers what it was asked to do
type recorder struct {
	name     string
	passes   int // EndProcess returns true until this many passes ran
	failOn   map[int]bool
	cancel   func()
	cancelAt int

	mu     sync.Mutex
	begins int
	ends   int
	seen   []int
}

func (p *recorder) Name() string { return p.name }

func (p *recorder) BeginProcess(dc *DocContext) error {
	p.mu.Lock()
	p.begins++
	p.mu.Unlock()
	return nil
}

func (p *recorder) Process(pc *PageContext) (bool, error) {
	p.mu.Lock()
	p.seen = append(p.seen, pc.Index())
	p.mu.Unlock()
	pc.Tracker.IncrementProgress(1)

	if p.cancel != nil && pc.Index() == p.cancelAt {
		p.cancel()
	}
	if p.failOn[pc.Index()] {
		return false, fmt.Errorf("broken page")
	}
	return pc.Index()%2 == 0, nil
}

func (p *recorder) EndProcess(Document) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ends++
	return p.ends < p.passes
}

func (p *recorder) EstimateWorkload(doc Document) int {
	n, _ := doc.PageCount()
	return n
}

// parallel is a recorder that accepts concurrent pages
type parallel struct {
	recorder
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *parallel) ProcessesConcurrently() {}

func (p *parallel) Process(pc *PageContext) (bool, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	return p.recorder.Process(pc)
}

func TestRunSequential(t *testing.T) {
	doc := newFakeDoc(4)
	p := &recorder{name: "rec", passes: 1}
	rec := &tracker.Recorder{}

	res, err := (&Runner{Processors: []PageProcessor{p}, Tracker: rec}).Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3}, p.seen); diff != "" {
		t.Errorf("page order mismatch (-want +got):\n%s", diff)
	}
	want := Result{Pages: 4, Changed: 2, Passes: 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if done, total := rec.Progress(); done != 4 || total != 4 {
		t.Errorf("progress = %d/%d, want 4/4", done, total)
	}
	if p.begins != 1 || p.ends != 1 {
		t.Errorf("begins=%d ends=%d, want 1 each", p.begins, p.ends)
	}
}

func TestRunPageErrorsDoNotStop(t *testing.T) {
	doc := newFakeDoc(3)
	p := &recorder{name: "rec", passes: 1, failOn: map[int]bool{1: true}}
	rec := &tracker.Recorder{}

	res, err := (&Runner{Processors: []PageProcessor{p}, Tracker: rec}).Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p.seen) != 3 {
		t.Errorf("visited %v, want all three pages", p.seen)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want one", res.Errors)
	}
	pe := res.Errors[0]
	if pe.Page != 1 || pe.Processor != "rec" {
		t.Errorf("PageError = %+v", pe)
	}
	if got := pe.Error(); got != "page 2: rec: broken page" {
		t.Errorf("Error() = %q", got)
	}

	var target *PageError
	if !errors.As(res.Err(), &target) {
		t.Error("Result.Err does not expose the PageError")
	}
	if len(rec.Messages(tracker.Warning)) != 1 {
		t.Errorf("warnings = %v", rec.Messages(tracker.Warning))
	}
}

func TestRunRepeatsPasses(t *testing.T) {
	doc := newFakeDoc(2)
	once := &recorder{name: "once", passes: 1}
	greedy := &recorder{name: "greedy", passes: 10}

	res, err := (&Runner{Processors: []PageProcessor{once, greedy}, MaxPasses: 3}).Run(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passes != 3 {
		t.Errorf("Passes = %d, want 3", res.Passes)
	}
	if once.begins != 1 || greedy.begins != 3 {
		t.Errorf("begins: once=%d greedy=%d, want 1 and 3", once.begins, greedy.begins)
	}
	if res.Pages != 6 {
		t.Errorf("Pages = %d, want 6 visits", res.Pages)
	}
}

func TestRunSelection(t *testing.T) {
	doc := newFakeDoc(5)
	p := &recorder{name: "rec", passes: 1}
	if _, err := (&Runner{Processors: []PageProcessor{p}, Pages: []int{4, 1}}).Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{4, 1}, p.seen); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}

	if _, err := (&Runner{Processors: []PageProcessor{p}, Pages: []int{5}}).Run(context.Background(), doc); err == nil {
		t.Error("expected error for page out of range")
	}
}

func TestRunCancellation(t *testing.T) {
	doc := newFakeDoc(5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &recorder{name: "rec", passes: 1, cancel: cancel, cancelAt: 1}

	res, err := (&Runner{Processors: []PageProcessor{p}}).Run(ctx, doc)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff([]int{0, 1}, p.seen); diff != "" {
		t.Errorf("pages after cancellation (-want +got):\n%s", diff)
	}
	if res.Pages != 2 {
		t.Errorf("Pages = %d, want 2", res.Pages)
	}
	if p.ends != 0 {
		t.Error("EndProcess ran after cancellation")
	}
}

func TestRunConcurrent(t *testing.T) {
	doc := newFakeDoc(32)
	p := &parallel{recorder: recorder{name: "par", passes: 1, failOn: map[int]bool{7: true, 20: true}}}

	res, err := (&Runner{Processors: []PageProcessor{p}, Workers: 4}).Run(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	// even pages change, except 20 which fails
	if res.Pages != 32 || res.Changed != 15 {
		t.Errorf("Pages=%d Changed=%d, want 32 and 15", res.Pages, res.Changed)
	}
	if peak := p.peak.Load(); peak > 4 {
		t.Errorf("%d pages in flight with 4 workers", peak)
	}

	var failed []int
	for _, e := range res.Errors {
		failed = append(failed, e.Page)
	}
	if diff := cmp.Diff([]int{7, 20}, failed); diff != "" {
		t.Errorf("errors out of page order (-want +got):\n%s", diff)
	}

	seen := slices.Clone(p.seen)
	slices.Sort(seen)
	for i, idx := range seen {
		if idx != i {
			t.Fatalf("page %d visited %v", i, seen)
		}
	}
}

func TestRunFallsBackToSequential(t *testing.T) {
	doc := newFakeDoc(8)
	par := &parallel{recorder: recorder{name: "par", passes: 1}}
	seq := &recorder{name: "seq", passes: 1}

	if _, err := (&Runner{Processors: []PageProcessor{par, seq}, Workers: 4}).Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if peak := par.peak.Load(); peak != 1 {
		t.Errorf("peak concurrency = %d with a sequential processor in the pass", peak)
	}
}

type failingBegin struct{ recorder }

func (*failingBegin) BeginProcess(*DocContext) error { return errors.New("no setup") }

func TestRunBeginError(t *testing.T) {
	_, err := (&Runner{Processors: []PageProcessor{&failingBegin{recorder{name: "fb"}}}}).Run(context.Background(), newFakeDoc(1))
	if err == nil || err.Error() != "fb: no setup" {
		t.Errorf("err = %v", err)
	}
}
