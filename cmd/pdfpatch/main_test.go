package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tsawler/pdfpatch/core"
	"github.com/tsawler/pdfpatch/reader"
	"github.com/tsawler/pdfpatch/tracker"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		in          string
		first, last int
		wantErr     bool
	}{
		{in: "3", first: 3, last: 3},
		{in: "5-7", first: 5, last: 7},
		{in: " 2 - 3 ", first: 2, last: 3},
		{in: "0", wantErr: true},
		{in: "4-2", wantErr: true},
		{in: "a", wantErr: true},
		{in: "1-", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			first, last, err := parsePageRange(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Errorf("parsePageRange(%q) = %d, %d, want error", tc.in, first, last)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePageRange(%q): %v", tc.in, err)
			}
			if first != tc.first || last != tc.last {
				t.Errorf("parsePageRange(%q) = %d, %d, want %d, %d", tc.in, first, last, tc.first, tc.last)
			}
		})
	}
}

// writeInput writes a one-page file showing a 40x40 gray image.
func writeInput(t *testing.T) string {
	t.Helper()
	const n = 40
	data := bytes.Repeat([]byte{255}, n*n)
	for i := n * n / 4; i < n*n*3/4; i++ {
		data[i] = 0
	}
	objects := []core.Object{
		core.Dict{"Type": core.Name("Catalog"), "Pages": core.IndirectRef{Number: 2}},
		core.Dict{"Type": core.Name("Pages"), "Count": core.Int(1), "Kids": core.Array{core.IndirectRef{Number: 3}}},
		core.Dict{"Type": core.Name("Page"), "Parent": core.IndirectRef{Number: 2},
			"Resources": core.Dict{"XObject": core.Dict{"Im0": core.IndirectRef{Number: 4}}}},
		&core.Stream{
			Dict: core.Dict{"Subtype": core.Name("Image"), "Width": core.Int(n), "Height": core.Int(n),
				"BitsPerComponent": core.Int(8), "ColorSpace": core.Name("DeviceGray"), "Length": core.Int(len(data))},
			Data: data,
		},
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		if err := core.WriteIndirect(&b, core.IndirectRef{Number: i + 1}, obj); err != nil {
			t.Fatal(err)
		}
	}
	xrefAt := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefAt)

	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	in := writeInput(t)

	log, err := execute("--pages", "1", in)
	if err != nil {
		t.Fatalf("execute: %v\n%s", err, log)
	}
	out := strings.TrimSuffix(in, ".pdf") + "-jbig2.pdf"
	if !strings.Contains(log, "wrote "+out) {
		t.Errorf("log = %q", log)
	}

	r, err := reader.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	obj, err := r.GetObject(4)
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := obj.(*core.Stream).Filter().Outermost(); f != core.FilterJBIG2 {
		t.Errorf("Filter = %v", obj.(*core.Stream).Get("Filter"))
	}
}

func TestRootCommandOutputFlag(t *testing.T) {
	in := writeInput(t)
	out := filepath.Join(t.TempDir(), "small.pdf")
	if log, err := execute("-q", "-o", out, "-t", "0", in); err != nil {
		t.Fatalf("execute: %v\n%s", err, log)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestRootCommandErrors(t *testing.T) {
	in := writeInput(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"two inputs", []string{in, in}},
		{"threshold out of range", []string{"--threshold", "256", in}},
		{"bad page", []string{"--pages", "0", in}},
		{"page past end", []string{"--pages", "2", in}},
		{"verbose and quiet", []string{"-v", "-q", in}},
		{"bad language", []string{"--lang", "!!", in}},
		{"missing file", []string{filepath.Join(t.TempDir(), "missing.pdf")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := execute(tc.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var log, term bytes.Buffer
	p := newProgress(tracker.NewWriter(&log, tracker.Message), &term, true)
	p.SetTotalWorkload(20)
	p.IncrementProgress(10)
	p.IncrementProgress(10)
	p.TraceMessage(tracker.Notice, "done")
	p.finish()

	want := "\r 50%\r100%\r\033[K"
	if got := term.String(); got != want {
		t.Errorf("terminal output = %q, want %q", got, want)
	}
	if !strings.Contains(log.String(), "[NOTICE] done") {
		t.Errorf("log = %q", log.String())
	}

	var quiet bytes.Buffer
	p = newProgress(tracker.NewWriter(&log, tracker.Message), &quiet, false)
	p.SetTotalWorkload(10)
	p.IncrementProgress(10)
	p.finish()
	if quiet.Len() != 0 {
		t.Errorf("progress printed without a terminal: %q", quiet.String())
	}
}
