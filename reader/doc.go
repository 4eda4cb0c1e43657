// Package reader opens PDF files and loads their objects on demand.
//
//	r, err := reader.Open("scan.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	n, _ := r.PageCount()
//	page, _ := r.GetPage(0)
//
// [NewReader] works on any io.ReaderAt, such as a bytes.Reader.
//
// # Cross-reference data
//
// Classic xref tables, xref streams and hybrid files are read, and the
// whole /Prev chain of incremental updates is merged. Objects stored in
// object streams are loaded transparently. Encrypted files are rejected
// with [ErrEncrypted].
//
// # Object identity and modification
//
// Loaded objects are cached, and the cache is the single copy of the
// document the rest of the module works on: resolving the same reference
// twice yields the same dictionary or *core.Stream. Code that changes an
// object in place reports it with [Reader.MarkModified]; the writer
// package reads [Reader.Modified] to decide what to serialize.
// [Reader.ClearCache] frees unmodified objects only.
//
// A Reader is safe for concurrent use. Objects are parsed outside the
// cache lock, and when two goroutines load the same object the first value
// stored wins.
package reader
