package tracker

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Count formats n with the digit grouping of tag, e.g. "12,345" for
// English and "12.345" for German.
func Count(tag language.Tag, n int) string {
	return message.NewPrinter(tag).Sprintf("%d", n)
}
