package stream

import (
	"errors"
	"strconv"
	"strings"

	"streamgate/internal/domain"
)

// ErrInvalidRange marks a syntactically malformed Range header. Distinct from
// domain.ErrRangeNotSatisfiable, which is a well-formed range past EOF.
var ErrInvalidRange = errors.New("invalid range")

// ParseByteRange parses a single-range "bytes=" header against a known size.
// Returned offsets are inclusive. Suffix ranges ("bytes=-N") address the last
// N bytes; multipart ranges are rejected.
func ParseByteRange(value string, size int64) (int64, int64, error) {
	if size <= 0 {
		return 0, 0, domain.ErrRangeNotSatisfiable
	}

	value = strings.TrimSpace(value)
	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, "bytes=") {
		return 0, 0, ErrInvalidRange
	}

	spec := strings.TrimSpace(value[len("bytes="):])
	if spec == "" || strings.Contains(spec, ",") {
		return 0, 0, ErrInvalidRange
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) == 1 {
		parts = append(parts, "")
	}

	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	if startStr == "" {
		if endStr == "" {
			return 0, 0, ErrInvalidRange
		}
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, ErrInvalidRange
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, ErrInvalidRange
	}
	if start >= size {
		return 0, 0, domain.ErrRangeNotSatisfiable
	}

	if endStr == "" {
		return start, -1, nil // open-ended; caller bounds the chunk
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 {
		return 0, 0, ErrInvalidRange
	}
	if end < start {
		return 0, 0, ErrInvalidRange
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}
