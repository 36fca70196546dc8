// Package stream implements the range proxy: it translates browser byte
// range semantics onto whatever delivery mechanism a resolved stream
// descriptor prescribes (direct substream, redirect, server-side relay).
package stream

import (
	"strconv"
	"strings"
)

// ByteRange is one parsed Range request window. End < 0 means open-ended.
type ByteRange struct {
	Start int64
	End   int64
}

// ParseRange parses a "bytes=<start>-<end>?" header leniently: anything
// malformed (wrong unit, non-numeric, suffix form, multiple ranges,
// start>end, start beyond a known total) reports ok=false and the caller
// serves the full body instead of failing the request. That matches how
// audio elements actually behave and avoids spurious playback errors.
// size may be negative when the total is unknown; the start-beyond-total
// check is skipped then.
func ParseRange(header string, size int64) (ByteRange, bool) {
	const prefix = "bytes="
	if header == "" || !strings.HasPrefix(header, prefix) {
		return ByteRange{}, false
	}

	spec := strings.TrimSpace(header[len(prefix):])
	if spec == "" || strings.Contains(spec, ",") {
		return ByteRange{}, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return ByteRange{}, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, false
	}
	if size >= 0 && start >= size {
		return ByteRange{}, false
	}

	end := int64(-1)
	if s := strings.TrimSpace(endStr); s != "" {
		end, err = strconv.ParseInt(s, 10, 64)
		if err != nil || end < start {
			return ByteRange{}, false
		}
	}

	return ByteRange{Start: start, End: end}, true
}
