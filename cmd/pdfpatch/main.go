// Command pdfpatch recompresses the raster images of a PDF file as JBIG2.
//
// Usage:
//
//	pdfpatch [flags] input.pdf
//
// Images are only replaced when the JBIG2 version is not larger. Without
// -o the result is written next to the input as name-jbig2.pdf.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/language"

	"github.com/tsawler/pdfpatch"
	"github.com/tsawler/pdfpatch/tracker"
)

type options struct {
	threshold   uint8
	algorithm   uint8
	output      string
	incremental bool
	workers     int
	pages       []string
	lang        string
	verbose     bool
	quiet       bool
	verify      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "pdfpatch [flags] input.pdf",
		Short: "Recompress the raster images of a PDF as JBIG2",
		Long: `Converts eligible images to black and white and stores them with
JBIG2 compression. An image is only replaced when the result is not larger.
Without -o the result is written next to the input as name-jbig2.pdf.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &o, args[0])
		},
	}

	f := cmd.Flags()
	f.Uint8VarP(&o.threshold, "threshold", "t", 128, "gray level below which pixels become black (0 keeps non-bilevel images)")
	f.Uint8VarP(&o.algorithm, "algorithm", "a", 255, "binarization: 255 thresholds, anything else dithers")
	f.StringVarP(&o.output, "output", "o", "", "output file (default: input-jbig2.pdf)")
	f.BoolVar(&o.incremental, "incremental", false, "append an update section instead of rewriting the file")
	f.IntVarP(&o.workers, "workers", "w", 1, "pages processed at once")
	f.StringSliceVarP(&o.pages, "pages", "p", nil, "pages to process, e.g. 1,3,5-7 (default: all)")
	f.StringVar(&o.lang, "lang", "en", "language for counts in the summary")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "show debug messages")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "show only warnings and errors")
	f.BoolVar(&o.verify, "verify", false, "decode every encoded image before using it")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	return cmd
}

func run(cmd *cobra.Command, o *options, in string) error {
	tag, err := language.Parse(o.lang)
	if err != nil {
		return fmt.Errorf("invalid --lang: %w", err)
	}
	p, err := selectPages(pdfpatch.Open(in), o.pages)
	if err != nil {
		return err
	}

	level := tracker.Message
	switch {
	case o.verbose:
		level = tracker.Debug
	case o.quiet:
		level = tracker.Warning
	}
	stderr := cmd.ErrOrStderr()
	tr := newProgress(tracker.NewWriter(stderr, level), stderr, !o.quiet && isTerminal(stderr))

	out := o.output
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + "-jbig2.pdf"
	}

	report, err := p.
		Threshold(o.threshold).
		Algorithm(o.algorithm).
		Workers(o.workers).
		Incremental(o.incremental).
		Verify(o.verify).
		Language(tag).
		Tracker(tr).
		Recompress().
		Save(out)
	tr.finish()
	if err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		tr.TraceMessage(tracker.Warning, fmt.Sprintf("%d page(s) had errors", len(report.Errors)))
	}
	tr.TraceMessage(tracker.Message, "wrote "+out,
		tracker.Int("replaced", report.Images.Optimized), tracker.Int("objects", len(report.Modified)))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// selectPages restricts p to the listed pages. Each item is a page number
// or an inclusive range like "5-7"; none means all pages.
func selectPages(p *pdfpatch.Patcher, items []string) (*pdfpatch.Patcher, error) {
	for _, item := range items {
		first, last, err := parsePageRange(item)
		if err != nil {
			return nil, err
		}
		p = p.PageRange(first, last)
	}
	return p, nil
}

func parsePageRange(s string) (first, last int, err error) {
	s = strings.TrimSpace(s)
	lo, hi, isRange := strings.Cut(s, "-")
	if first, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil {
		return 0, 0, fmt.Errorf("invalid page %q", s)
	}
	last = first
	if isRange {
		if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return 0, 0, fmt.Errorf("invalid page range %q", s)
		}
	}
	if first < 1 || last < first {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	return first, last, nil
}

// progress prints a percentage line on a terminal in addition to the
// messages of the wrapped writer.
type progress struct {
	*tracker.Writer
	out  io.Writer
	show bool

	mu   sync.Mutex
	last int
}

func newProgress(w *tracker.Writer, out io.Writer, show bool) *progress {
	return &progress{Writer: w, out: out, show: show, last: -1}
}

func (p *progress) TraceMessage(c tracker.Category, msg string, fields ...tracker.Field) {
	p.mu.Lock()
	if p.show && p.last >= 0 {
		fmt.Fprint(p.out, "\r\033[K")
		p.last = -1
	}
	p.mu.Unlock()
	p.Writer.TraceMessage(c, msg, fields...)
}

func (p *progress) IncrementProgress(n int) {
	p.Writer.IncrementProgress(n)
	if !p.show {
		return
	}
	done, total := p.Progress()
	if total <= 0 {
		return
	}
	pct := min(done*100/total, 100)
	p.mu.Lock()
	defer p.mu.Unlock()
	if pct != p.last {
		fmt.Fprintf(p.out, "\r%3d%%", pct)
		p.last = pct
	}
}

// finish clears the progress line.
func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.show && p.last >= 0 {
		fmt.Fprint(p.out, "\r\033[K")
		p.last = -1
	}
}
