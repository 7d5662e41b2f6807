// Package scheduler maps file-relative byte ranges onto torrent-absolute
// piece priorities. It is pure computation: callers apply the resulting spans
// to the engine themselves. Every request recomputes from scratch, so the
// output depends only on the inputs, never on a previous window.
package scheduler

import "streamgate/internal/domain"

// Layout is the fixed piece geometry of one file inside a torrent. FileOffset
// is the file's absolute byte offset within the torrent's combined data,
// which is what makes piece indices torrent-relative rather than per-file.
type Layout struct {
	PieceLength int64
	NumPieces   int
	FileOffset  int64
	FileLength  int64
}

// PieceSpan is a half-open torrent-absolute piece index range [Start, End).
type PieceSpan struct {
	Start int
	End   int
}

func (s PieceSpan) Empty() bool { return s.End <= s.Start }

// Band couples a piece span with the priority it should be fetched at.
type Band struct {
	Span PieceSpan
	Prio domain.Priority
}

// Graduated band widths for the start of a freshly requested window. The
// first bytes must arrive fastest so playback starts without a long stall.
const (
	highBandBytes int64 = 4 << 20
	nextBandBytes int64 = 4 << 20
)

// Window maps a file-relative byte range onto the covering piece span,
// clamped to the file and the torrent. Returns false when the range selects
// nothing (zero length, start past end of file, degenerate layout).
func Window(l Layout, r domain.Range) (PieceSpan, bool) {
	if l.PieceLength <= 0 || l.NumPieces <= 0 || l.FileLength <= 0 {
		return PieceSpan{}, false
	}
	if r.Length == 0 {
		return PieceSpan{}, false
	}

	start := l.FileOffset + r.Off
	if start < l.FileOffset {
		start = l.FileOffset
	}
	fileEnd := l.FileOffset + l.FileLength
	if start >= fileEnd {
		return PieceSpan{}, false
	}
	end := fileEnd
	if r.Length > 0 {
		end = start + r.Length
		if end > fileEnd || end < start {
			end = fileEnd
		}
	}

	startPiece := int(start / l.PieceLength)
	endPiece := int((end + l.PieceLength - 1) / l.PieceLength)
	if endPiece <= startPiece {
		endPiece = startPiece + 1
	}
	if startPiece < 0 {
		startPiece = 0
	}
	if startPiece >= l.NumPieces {
		return PieceSpan{}, false
	}
	if endPiece > l.NumPieces {
		endPiece = l.NumPieces
	}
	if endPiece <= startPiece {
		return PieceSpan{}, false
	}
	return PieceSpan{Start: startPiece, End: endPiece}, true
}

// Plan computes the full priority layout for a seek to file offset off with a
// readahead window of windowBytes: graduated bands ahead of the playhead
// (high, next, readahead, then normal) and a low-priority band behind it.
// Pieces behind the playhead stay fetchable so a backward seek still works,
// just slower. Bands never overlap and are clamped to the file.
func Plan(l Layout, off, windowBytes int64) []Band {
	if l.FileLength <= 0 || off >= l.FileLength || off < 0 {
		return nil
	}
	if windowBytes <= 0 {
		windowBytes = highBandBytes
	}
	if rest := l.FileLength - off; windowBytes > rest {
		windowBytes = rest
	}

	var bands []Band
	appendBand := func(r domain.Range, prio domain.Priority) {
		span, ok := Window(l, r)
		if !ok {
			return
		}
		// Trim overlap with the previous band; piece granularity makes
		// adjacent byte bands share an edge piece.
		if n := len(bands); n > 0 && span.Start < bands[n-1].Span.End {
			span.Start = bands[n-1].Span.End
		}
		if !span.Empty() {
			bands = append(bands, Band{Span: span, Prio: prio})
		}
	}

	remaining := windowBytes
	cursor := off

	h := highBandBytes
	if h > remaining {
		h = remaining
	}
	appendBand(domain.Range{Off: cursor, Length: h}, domain.PriorityHigh)
	cursor += h
	remaining -= h

	if remaining > 0 {
		n := nextBandBytes
		if n > remaining {
			n = remaining
		}
		appendBand(domain.Range{Off: cursor, Length: n}, domain.PriorityNext)
		cursor += n
		remaining -= n
	}
	if remaining > 0 {
		ra := remaining / 4
		if ra < highBandBytes {
			ra = remaining
		}
		if ra > remaining {
			ra = remaining
		}
		appendBand(domain.Range{Off: cursor, Length: ra}, domain.PriorityReadahead)
		cursor += ra
		remaining -= ra
	}
	if remaining > 0 {
		appendBand(domain.Range{Off: cursor, Length: remaining}, domain.PriorityNormal)
	}

	// Everything strictly behind the playhead drops to low priority.
	if off > 0 {
		if span, ok := Window(l, domain.Range{Off: 0, Length: off}); ok {
			// The piece containing the playhead belongs to the high band.
			playheadPiece := int((l.FileOffset + off) / l.PieceLength)
			if span.End > playheadPiece {
				span.End = playheadPiece
			}
			if !span.Empty() {
				bands = append(bands, Band{Span: span, Prio: domain.PriorityLow})
			}
		}
	}
	return bands
}
