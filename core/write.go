package core

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteObject serializes obj in PDF syntax. Dictionary keys are written in
// sorted order so output is deterministic. A stream's /Length is always
// written as the size of its payload.
func WriteObject(w io.Writer, obj Object) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	if err := writeObject(bw, obj); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteIndirect serializes "num gen obj ... endobj".
func WriteIndirect(w io.Writer, ref IndirectRef, obj Object) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d obj\n", ref.Number, ref.Generation)
	if err := writeObject(bw, obj); err != nil {
		return err
	}
	bw.WriteString("\nendobj\n")
	return bw.Flush()
}

func writeObject(w *bufio.Writer, obj Object) error {
	switch v := obj.(type) {
	case nil, Null:
		w.WriteString("null")
	case Bool, Int, IndirectRef:
		w.WriteString(v.String())
	case Real:
		w.WriteString(formatReal(float64(v)))
	case Name:
		writeName(w, v)
	case String:
		writeString(w, v)
	case Array:
		w.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				w.WriteByte(' ')
			}
			if err := writeObject(w, elem); err != nil {
				return err
			}
		}
		w.WriteByte(']')
	case Dict:
		return writeDict(w, v, nil)
	case *Stream:
		if err := writeDict(w, v.Dict, Int(len(v.Data))); err != nil {
			return err
		}
		w.WriteString("\nstream\n")
		w.Write(v.Data)
		w.WriteString("\nendstream")
	default:
		return fmt.Errorf("cannot serialize %T", obj)
	}
	return nil
}

// writeDict writes d; a non-nil length overrides /Length.
func writeDict(w *bufio.Writer, d Dict, length Object) error {
	w.WriteString("<<")
	for _, key := range d.Keys() {
		val := d[key]
		if key == "Length" && length != nil {
			continue
		}
		writeName(w, Name(key))
		w.WriteByte(' ')
		if err := writeObject(w, val); err != nil {
			return fmt.Errorf("/%s: %w", key, err)
		}
	}
	if length != nil {
		w.WriteString("/Length ")
		w.WriteString(length.String())
	}
	w.WriteString(">>")
	return nil
}

func formatReal(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeName(w *bufio.Writer, n Name) {
	w.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || c == '#' || isDelimiter(c) {
			fmt.Fprintf(w, "#%02X", c)
			continue
		}
		w.WriteByte(c)
	}
}

// writeString picks the literal form for mostly printable text and the
// hexadecimal form otherwise.
func writeString(w *bufio.Writer, s String) {
	binary := 0
	for i := 0; i < len(s); i++ {
		if c := s[i]; (c < ' ' || c > '~') && c != '\n' && c != '\r' && c != '\t' {
			binary++
		}
	}
	if binary*4 > len(s) {
		fmt.Fprintf(w, "<%X>", []byte(s))
		return
	}
	w.WriteByte('(')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '(', ')', '\\':
			w.WriteByte('\\')
			w.WriteByte(c)
		case '\r':
			w.WriteString(`\r`)
		default:
			if c < ' ' && c != '\n' && c != '\t' || c > '~' {
				fmt.Fprintf(w, "\\%03o", c)
			} else {
				w.WriteByte(c)
			}
		}
	}
	w.WriteByte(')')
}
