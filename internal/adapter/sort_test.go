package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestSortEntriesDirectoriesFirst(t *testing.T) {
	entries := []Entry{
		{Name: "zz.mp3", Kind: EntryFile},
		{Name: "Albums", Kind: EntryDirectory},
		{Name: "aa.mp3", Kind: EntryFile},
		{Name: "singles", Kind: EntryDirectory},
	}
	SortEntries(entries)

	require.Len(t, entries, 4)
	assert.Equal(t, []string{"Albums", "singles", "aa.mp3", "zz.mp3"}, names(entries))
}

func TestSortEntriesCaseInsensitive(t *testing.T) {
	entries := []Entry{
		{Name: "beta.mp3", Kind: EntryFile},
		{Name: "Alpha.mp3", Kind: EntryFile},
		{Name: "alpha.flac", Kind: EntryFile},
	}
	SortEntries(entries)

	// Case folds for ordering: both alphas land before beta regardless of
	// their byte values.
	assert.Equal(t, "beta.mp3", entries[2].Name)
}

func TestSortEntriesDeterministicTieBreak(t *testing.T) {
	a := []Entry{
		{Name: "Track.mp3", Kind: EntryFile},
		{Name: "track.mp3", Kind: EntryFile},
	}
	b := []Entry{
		{Name: "track.mp3", Kind: EntryFile},
		{Name: "Track.mp3", Kind: EntryFile},
	}
	SortEntries(a)
	SortEntries(b)

	// Equal-folding names must land in the same order from any input order.
	assert.Equal(t, names(a), names(b))
}

func TestSortEntriesNonLatin(t *testing.T) {
	entries := []Entry{
		{Name: "周杰伦.mp3", Kind: EntryFile},
		{Name: "abba.mp3", Kind: EntryFile},
		{Name: "Ágætis.mp3", Kind: EntryFile},
	}
	SortEntries(entries)

	// No crash, stable output, files stay files. Exact collation order for
	// mixed scripts is the collator's business.
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, EntryFile, e.Kind)
	}
}

func TestSortEntriesEmpty(t *testing.T) {
	SortEntries(nil)
	SortEntries([]Entry{})
}
