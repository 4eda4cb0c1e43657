// Package core holds the PDF object model and the low-level machinery to
// read and write it.
//
// # Object Types
//
// The eight basic PDF types satisfy the [Object] interface: [Null], [Bool],
// [Int], [Real], [String], [Name], [Array] and [Dict]. [Stream] couples a
// dictionary with its payload and [IndirectRef] points at an indirect
// object.
//
// # Access
//
// [Locate] and the typed getters ([GetInt], [GetName], [GetDict], ...)
// follow indirect references through a [Resolver] and report a missing key,
// a failed lookup and a value of the wrong type the same way: as absent.
//
//	xobjects, ok := core.Locate(doc, page, "Resources", "XObject")
//
// Streams are edited in place with [Stream.Put], [Stream.Remove] and
// [Stream.SetData]. [FilterOf] interprets a /Filter entry; the outermost
// filter is the last element of a chain.
//
// # Parsing
//
// [Lexer] splits input into tokens and [Parser] builds objects from them.
// [XRefParser] reads classic cross-reference tables, xref streams and
// hybrid files, and [ObjectStream] unpacks compressed objects.
//
// # Writing
//
// [WriteObject] and [WriteIndirect] serialize objects with sorted
// dictionary keys.
package core
