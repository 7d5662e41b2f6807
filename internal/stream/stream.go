// Package stream turns a byte-range request against one file of a session
// into a prioritized, bounded byte stream the HTTP layer can copy out.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/scheduler"
)

// tailPreloadBytes is fetched from the file end up front: players read
// container metadata there first (MP4 moov atoms, MKV SeekHead/Cues).
const tailPreloadBytes int64 = 16 << 20

// Source is the slice of a registry session the streamer needs.
type Source interface {
	Handle() ports.Handle
	Phase() domain.SessionPhase
	SelectFile(index int) (domain.FileEntry, error)
	MarkActive()
	// Touch refreshes the session's idle clock; body reads call it so a
	// long playback is not reaped as idle.
	Touch()
	Removed() <-chan struct{}
}

type Streamer struct {
	// ReadaheadBytes is passed to the engine reader; zero uses the default.
	ReadaheadBytes int64
	// ChunkBytes bounds open-ended ranges; zero uses DefaultChunkBytes.
	ChunkBytes int64
	Log        *slog.Logger
}

// Stream is one in-flight ranged read. Start and End are inclusive byte
// offsets within the file; Body yields exactly End-Start+1 bytes in order.
type Stream struct {
	Body      io.ReadCloser
	File      domain.FileEntry
	Start     int64
	End       int64
	Total     int64
	IsPartial bool
}

func (s *Stream) ContentLength() int64 { return s.End - s.Start + 1 }

func (s *Stream) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", s.Start, s.End, s.Total)
}

// Open prepares a ranged read of one file. start/end follow half-open
// semantics: end is exclusive, and a negative end means "open-ended" (a
// bounded chunk for partial requests, the whole file when the caller asked
// for no range at all — hasRange distinguishes the two). The session must
// have reached metadataReady.
func (st *Streamer) Open(ctx context.Context, src Source, fileIndex int, start, end int64, hasRange bool) (*Stream, error) {
	if !src.Phase().Ready() {
		return nil, domain.ErrFileNotAvailable
	}
	file, err := src.SelectFile(fileIndex)
	if err != nil {
		return nil, err
	}
	size := file.Length
	if size <= 0 {
		return nil, domain.ErrFileNotAvailable
	}
	if start < 0 || start >= size {
		return nil, domain.ErrRangeNotSatisfiable
	}

	if end < 0 {
		if hasRange {
			chunk := st.ChunkBytes
			if chunk <= 0 {
				chunk = DefaultChunkBytes
			}
			end = start + chunk
		} else {
			end = size
		}
	}
	if end > size {
		end = size
	}
	if end <= start {
		return nil, domain.ErrRangeNotSatisfiable
	}

	handle := src.Handle()
	fileOffset, err := handle.FileOffset(fileIndex)
	if err != nil {
		return nil, err
	}
	layout := scheduler.Layout{
		PieceLength: handle.PieceLength(),
		NumPieces:   handle.NumPieces(),
		FileOffset:  fileOffset,
		FileLength:  size,
	}

	readahead := st.ReadaheadBytes
	if readahead <= 0 {
		readahead = defaultReadaheadBytes
	}
	window := priorityWindow(readahead, size)
	for _, band := range scheduler.Plan(layout, start, window) {
		handle.SetPiecePriority(band.Span.Start, band.Span.End, band.Prio)
	}
	if size > tailPreloadBytes*2 {
		if span, ok := scheduler.Window(layout, domain.Range{Off: size - tailPreloadBytes, Length: tailPreloadBytes}); ok {
			handle.SetPiecePriority(span.Start, span.End, domain.PriorityReadahead)
		}
	}

	reader, err := handle.NewReader(fileIndex)
	if err != nil {
		return nil, err
	}
	reader.SetContext(ctx)
	reader.SetReadahead(readahead)

	sliding := newSlidingReader(reader, handle, layout, readahead, window)
	if _, err := sliding.Seek(start, io.SeekStart); err != nil {
		_ = sliding.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, err)
	}

	return &Stream{
		Body:      &rangeBody{reader: sliding, src: src, remaining: end - start},
		File:      file,
		Start:     start,
		End:       end - 1,
		Total:     size,
		IsPartial: hasRange,
	}, nil
}

// rangeBody bounds the sliding reader to the requested range and fails
// cleanly when the session is removed mid-stream. It never emits a byte it
// cannot account for: a truncated read surfaces as ErrStreamInterrupted, not
// as a short success.
type rangeBody struct {
	reader    ports.StreamReader
	src       Source
	remaining int64
	started   sync.Once
}

func (b *rangeBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	select {
	case <-b.src.Removed():
		return 0, fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, domain.ErrSessionRemoved)
	default:
	}

	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.reader.Read(p)
	if n > 0 {
		b.remaining -= int64(n)
		b.src.Touch()
		b.started.Do(b.src.MarkActive)
	}
	if err == io.EOF && b.remaining > 0 {
		err = fmt.Errorf("%w: short read, %d bytes missing", domain.ErrStreamInterrupted, b.remaining)
	} else if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, err)
	}
	return n, err
}

func (b *rangeBody) Close() error { return b.reader.Close() }
