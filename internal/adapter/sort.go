package adapter

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// newCollator builds the collator used for listing order. Und with
// case-insensitive comparison gives locale-aware ordering that still
// behaves sensibly for mixed-script names (CJK vendor drives next to
// Latin WebDAV shares).
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase)
}

// SortEntries orders a listing in place: directories before files, then
// collated case-insensitive name order within each group, with raw string
// order as the tie-break so equal-folding names sort deterministically.
func SortEntries(entries []Entry) {
	c := newCollator()
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Kind != b.Kind {
			return a.Kind == EntryDirectory
		}
		if r := c.CompareString(a.Name, b.Name); r != 0 {
			return r < 0
		}
		return strings.Compare(a.Name, b.Name) < 0
	})
}
