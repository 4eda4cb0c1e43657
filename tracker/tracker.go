// Package tracker receives the messages and progress reports of a
// processing run.
package tracker

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Category classifies a message. Categories are ordered by severity, with
// Debug the least severe.
type Category int

const (
	Debug Category = iota
	Message
	Notice
	Warning
	Error
)

var categoryNames = [...]string{
	Debug:   "DEBUG",
	Message: "MESSAGE",
	Notice:  "NOTICE",
	Warning: "WARNING",
	Error:   "ERROR",
}

func (c Category) String() string {
	if c >= 0 && int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Tracker is the sink for a run's messages and progress. Implementations
// must be safe for concurrent use.
type Tracker interface {
	TraceMessage(c Category, msg string, fields ...Field)
	IncrementProgress(n int)
	SetTotalWorkload(n int)
}

// Field is a key/value pair attached to a message.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field  { return Field{key, value} }
func Int(key string, value int) Field { return Field{key, value} }
func Err(err error) Field             { return Field{"error", err} }

func (f Field) String() string {
	return fmt.Sprintf("%s=%v", f.Key, f.Value)
}

// Nop discards everything.
type Nop struct{}

func (Nop) TraceMessage(Category, string, ...Field) {}
func (Nop) IncrementProgress(int)                   {}
func (Nop) SetTotalWorkload(int)                    {}

// progress is the workload accounting shared by the implementations.
type progress struct {
	done, total int
}

// Writer logs messages at or above a minimum category, one per line.
type Writer struct {
	mu     sync.Mutex
	logger *log.Logger
	min    Category
	progress
}

// NewWriter returns a Writer that prints to w.
func NewWriter(w io.Writer, min Category) *Writer {
	return &Writer{logger: log.New(w, "", 0), min: min}
}

// TraceMessage implements Tracker.
func (w *Writer) TraceMessage(c Category, msg string, fields ...Field) {
	if c < w.min {
		return
	}
	var sb strings.Builder
	if c != Message {
		sb.WriteString("[" + c.String() + "] ")
	}
	sb.WriteString(msg)
	for _, f := range fields {
		sb.WriteByte(' ')
		sb.WriteString(f.String())
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger.Print(sb.String())
}

// IncrementProgress implements Tracker.
func (w *Writer) IncrementProgress(n int) {
	w.mu.Lock()
	w.done += n
	w.mu.Unlock()
}

// SetTotalWorkload implements Tracker.
func (w *Writer) SetTotalWorkload(n int) {
	w.mu.Lock()
	w.total = n
	w.mu.Unlock()
}

// Progress returns the work done so far and the announced total.
func (w *Writer) Progress() (done, total int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done, w.total
}

// Record is one message captured by a Recorder.
type Record struct {
	Category Category
	Message  string
	Fields   []Field
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	progress
}

// TraceMessage implements Tracker.
func (r *Recorder) TraceMessage(c Category, msg string, fields ...Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Category: c, Message: msg, Fields: fields})
}

// IncrementProgress implements Tracker.
func (r *Recorder) IncrementProgress(n int) {
	r.mu.Lock()
	r.done += n
	r.mu.Unlock()
}

// SetTotalWorkload implements Tracker.
func (r *Recorder) SetTotalWorkload(n int) {
	r.mu.Lock()
	r.total = n
	r.mu.Unlock()
}

// Records returns a copy of the messages captured so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Messages returns the captured messages of category c.
func (r *Recorder) Messages(c Category) []string {
	var out []string
	for _, rec := range r.Records() {
		if rec.Category == c {
			out = append(out, rec.Message)
		}
	}
	return out
}

// Progress returns the work done so far and the announced total.
func (r *Recorder) Progress() (done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done, r.total
}
