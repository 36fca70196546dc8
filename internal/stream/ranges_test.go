package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name   string
		header string
		size   int64
		want   ByteRange
		ok     bool
	}{
		{"empty", "", 1000, ByteRange{}, false},
		{"full range", "bytes=0-499", 1000, ByteRange{Start: 0, End: 499}, true},
		{"open ended", "bytes=500-", 1000, ByteRange{Start: 500, End: -1}, true},
		{"interior window", "bytes=100-199", 1000, ByteRange{Start: 100, End: 199}, true},
		{"wrong unit", "items=0-10", 1000, ByteRange{}, false},
		{"non-numeric", "bytes=abc-def", 1000, ByteRange{}, false},
		{"suffix form", "bytes=-500", 1000, ByteRange{}, false},
		{"multiple ranges", "bytes=0-10,20-30", 1000, ByteRange{}, false},
		{"end before start", "bytes=200-100", 1000, ByteRange{}, false},
		{"start at size", "bytes=1000-", 1000, ByteRange{}, false},
		{"start beyond size", "bytes=5000-", 1000, ByteRange{}, false},
		{"unknown size skips bound check", "bytes=5000-", -1, ByteRange{Start: 5000, End: -1}, true},
		{"no dash", "bytes=100", 1000, ByteRange{}, false},
		{"negative start", "bytes=-1-10", 1000, ByteRange{}, false},
		{"whitespace tolerated", "bytes= 10 - 20 ", 1000, ByteRange{Start: 10, End: 20}, true},
		{"end past size allowed here", "bytes=0-99999", 1000, ByteRange{Start: 0, End: 99999}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRange(tt.header, tt.size)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
