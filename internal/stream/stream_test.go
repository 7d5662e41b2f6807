package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

// memReader serves a byte slice through the engine reader interface.
type memReader struct {
	data   []byte
	pos    int64
	closed bool
}

func (m *memReader) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.data)) + offset
	}
	return m.pos, nil
}

func (m *memReader) Close() error               { m.closed = true; return nil }
func (m *memReader) SetContext(context.Context) {}
func (m *memReader) SetReadahead(int64)         {}

type prioCall struct {
	start, end int
	prio       domain.Priority
}

type fakeStreamHandle struct {
	data       []byte
	fileLength int64
	pieceLen   int64
	fileOffset int64

	mu    sync.Mutex
	calls []prioCall
}

func (f *fakeStreamHandle) InfoHash() string       { return "cafe" }
func (f *fakeStreamHandle) Name() string           { return "test torrent" }
func (f *fakeStreamHandle) Ready() <-chan struct{} { ch := make(chan struct{}); close(ch); return ch }
func (f *fakeStreamHandle) TotalLength() int64     { return f.fileOffset + f.fileLength }
func (f *fakeStreamHandle) PieceLength() int64     { return f.pieceLen }

func (f *fakeStreamHandle) NumPieces() int {
	return int((f.TotalLength() + f.pieceLen - 1) / f.pieceLen)
}

func (f *fakeStreamHandle) Files() []domain.FileEntry {
	return []domain.FileEntry{{Index: 0, Path: "video.mp4", Length: f.fileLength}}
}

func (f *fakeStreamHandle) FileOffset(index int) (int64, error) {
	if index != 0 {
		return 0, domain.ErrFileNotAvailable
	}
	return f.fileOffset, nil
}

func (f *fakeStreamHandle) SetFilePriority(index int, prio domain.Priority) error { return nil }

func (f *fakeStreamHandle) SetPiecePriority(start, end int, prio domain.Priority) {
	f.mu.Lock()
	f.calls = append(f.calls, prioCall{start, end, prio})
	f.mu.Unlock()
}

func (f *fakeStreamHandle) NewReader(index int) (ports.StreamReader, error) {
	if index != 0 {
		return nil, domain.ErrFileNotAvailable
	}
	return &memReader{data: f.data}, nil
}

func (f *fakeStreamHandle) Stats() domain.SessionSummary { return domain.SessionSummary{} }
func (f *fakeStreamHandle) Drop()                        {}

func (f *fakeStreamHandle) priorityCalls() []prioCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]prioCall(nil), f.calls...)
}

type fakeSource struct {
	handle  *fakeStreamHandle
	phase   domain.SessionPhase
	removed chan struct{}

	mu      sync.Mutex
	active  bool
	touches int
}

func newFakeSource(h *fakeStreamHandle) *fakeSource {
	return &fakeSource{handle: h, phase: domain.PhaseMetadataReady, removed: make(chan struct{})}
}

func (s *fakeSource) Handle() ports.Handle       { return s.handle }
func (s *fakeSource) Phase() domain.SessionPhase { return s.phase }
func (s *fakeSource) Removed() <-chan struct{}   { return s.removed }

func (s *fakeSource) SelectFile(index int) (domain.FileEntry, error) {
	files := s.handle.Files()
	if index < 0 || index >= len(files) {
		return domain.FileEntry{}, domain.ErrFileNotAvailable
	}
	f := files[index]
	f.Selected = true
	return f, nil
}

func (s *fakeSource) MarkActive() {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
}

func (s *fakeSource) Touch() {
	s.mu.Lock()
	s.touches++
	s.mu.Unlock()
}

func (s *fakeSource) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fakeSource) touchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touches
}

func patternData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 31)
	}
	return data
}

func newTestSource(n int) (*fakeSource, []byte) {
	data := patternData(n)
	h := &fakeStreamHandle{
		data:       data,
		fileLength: int64(n),
		pieceLen:   1 << 10,
		fileOffset: 3 << 10, // file starts three pieces into the torrent
	}
	return newFakeSource(h), data
}

func TestOpenRangeCorrectness(t *testing.T) {
	src, data := newTestSource(5000)
	st := &Streamer{}

	stream, err := st.Open(context.Background(), src, 0, 1000, 2000, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()

	if stream.ContentLength() != 1000 {
		t.Fatalf("ContentLength = %d, want 1000", stream.ContentLength())
	}
	if !stream.IsPartial {
		t.Fatal("ranged stream must be partial")
	}
	if got, want := stream.ContentRange(), "bytes 1000-1999/5000"; got != want {
		t.Fatalf("ContentRange = %q, want %q", got, want)
	}

	body, err := io.ReadAll(stream.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(body, data[1000:2000]) {
		t.Fatal("body bytes differ from file content at that offset")
	}
}

func TestOpenRangePastEOF(t *testing.T) {
	src, _ := newTestSource(5000)
	st := &Streamer{}
	if _, err := st.Open(context.Background(), src, 0, 6000, -1, true); !errors.Is(err, domain.ErrRangeNotSatisfiable) {
		t.Fatalf("Open past EOF = %v, want ErrRangeNotSatisfiable", err)
	}
	if _, err := st.Open(context.Background(), src, 0, 5000, -1, true); !errors.Is(err, domain.ErrRangeNotSatisfiable) {
		t.Fatalf("Open at EOF = %v, want ErrRangeNotSatisfiable", err)
	}
}

func TestOpenEndedRangeIsBounded(t *testing.T) {
	src, data := newTestSource(5000)
	st := &Streamer{ChunkBytes: 1024}

	stream, err := st.Open(context.Background(), src, 0, 1000, -1, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()

	if stream.ContentLength() != 1024 {
		t.Fatalf("ContentLength = %d, want bounded chunk 1024", stream.ContentLength())
	}
	body, _ := io.ReadAll(stream.Body)
	if !bytes.Equal(body, data[1000:2024]) {
		t.Fatal("bounded chunk bytes differ")
	}
}

func TestOpenEndedChunkClampedToEOF(t *testing.T) {
	src, _ := newTestSource(5000)
	st := &Streamer{ChunkBytes: 1024}

	stream, err := st.Open(context.Background(), src, 0, 4500, -1, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()
	if stream.End != 4999 {
		t.Fatalf("End = %d, want clamped 4999", stream.End)
	}
}

func TestOpenWithoutRangeServesWholeFile(t *testing.T) {
	src, data := newTestSource(5000)
	st := &Streamer{ChunkBytes: 1024}

	stream, err := st.Open(context.Background(), src, 0, 0, -1, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()

	if stream.IsPartial {
		t.Fatal("full-file stream must not be partial")
	}
	if stream.ContentLength() != 5000 {
		t.Fatalf("ContentLength = %d, want 5000", stream.ContentLength())
	}
	body, _ := io.ReadAll(stream.Body)
	if !bytes.Equal(body, data) {
		t.Fatal("full body differs from file content")
	}
}

func TestOpenRequiresMetadata(t *testing.T) {
	src, _ := newTestSource(5000)
	src.phase = domain.PhaseResolving
	st := &Streamer{}
	if _, err := st.Open(context.Background(), src, 0, 0, -1, false); !errors.Is(err, domain.ErrFileNotAvailable) {
		t.Fatalf("Open before metadata = %v, want ErrFileNotAvailable", err)
	}
}

func TestOpenInvalidFileIndex(t *testing.T) {
	src, _ := newTestSource(5000)
	st := &Streamer{}
	if _, err := st.Open(context.Background(), src, 7, 0, -1, false); !errors.Is(err, domain.ErrFileNotAvailable) {
		t.Fatalf("Open bad index = %v, want ErrFileNotAvailable", err)
	}
}

func TestOpenAppliesPriorityPlan(t *testing.T) {
	src, _ := newTestSource(64 << 10)
	st := &Streamer{}

	start := int64(10 << 10)
	stream, err := st.Open(context.Background(), src, 0, start, start+1024, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()

	calls := src.handle.priorityCalls()
	if len(calls) == 0 {
		t.Fatal("no piece priorities applied")
	}
	wantStart := int((src.handle.fileOffset + start) / src.handle.pieceLen)
	if calls[0].prio != domain.PriorityHigh {
		t.Fatalf("first band prio = %d, want high", calls[0].prio)
	}
	if calls[0].start != wantStart {
		t.Fatalf("first band starts at piece %d, want %d", calls[0].start, wantStart)
	}
}

func TestMarkActiveOnFirstByte(t *testing.T) {
	src, _ := newTestSource(5000)
	st := &Streamer{}

	stream, err := st.Open(context.Background(), src, 0, 0, 100, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()

	if src.isActive() {
		t.Fatal("session active before any byte was read")
	}
	buf := make([]byte, 10)
	if _, err := stream.Body.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !src.isActive() {
		t.Fatal("first byte did not mark the session active")
	}
}

// Every successful body read must refresh the session's idle clock, or the
// idle reaper would tear down a session mid-playback.
func TestReadsTouchSource(t *testing.T) {
	src, _ := newTestSource(5000)
	st := &Streamer{}

	stream, err := st.Open(context.Background(), src, 0, 0, 300, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()

	if src.touchCount() != 0 {
		t.Fatalf("touches before reading = %d, want 0", src.touchCount())
	}
	buf := make([]byte, 100)
	for i := 0; i < 3; i++ {
		if _, err := stream.Body.Read(buf); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if got := src.touchCount(); got != 3 {
		t.Fatalf("touches after three reads = %d, want 3", got)
	}
}

func TestRemovalInterruptsStream(t *testing.T) {
	src, _ := newTestSource(5000)
	st := &Streamer{}

	stream, err := st.Open(context.Background(), src, 0, 0, 5000, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()

	buf := make([]byte, 100)
	if _, err := stream.Body.Read(buf); err != nil {
		t.Fatalf("read before removal: %v", err)
	}

	close(src.removed)
	if _, err := stream.Body.Read(buf); !errors.Is(err, domain.ErrStreamInterrupted) {
		t.Fatalf("read after removal = %v, want ErrStreamInterrupted", err)
	}
}

func TestShortReadIsInterruptionNotSuccess(t *testing.T) {
	// The handle claims 5000 bytes but can only serve 3000: the body must
	// surface an interruption, never a clean EOF.
	data := patternData(3000)
	h := &fakeStreamHandle{data: data, fileLength: 5000, pieceLen: 1 << 10}
	src := newFakeSource(h)
	st := &Streamer{}

	stream, err := st.Open(context.Background(), src, 0, 0, 5000, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Body.Close()

	_, err = io.ReadAll(stream.Body)
	if !errors.Is(err, domain.ErrStreamInterrupted) {
		t.Fatalf("truncated stream = %v, want ErrStreamInterrupted", err)
	}
}

func TestParseByteRange(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		size    int64
		start   int64
		end     int64
		wantErr error
	}{
		{"closed", "bytes=0-499", 1000, 0, 499, nil},
		{"closedClamped", "bytes=500-2000", 1000, 500, 999, nil},
		{"openEnded", "bytes=500-", 1000, 500, -1, nil},
		{"suffix", "bytes=-200", 1000, 800, 999, nil},
		{"suffixLargerThanFile", "bytes=-5000", 1000, 0, 999, nil},
		{"startAtEOF", "bytes=1000-", 1000, 0, 0, domain.ErrRangeNotSatisfiable},
		{"startPastEOF", "bytes=1500-", 1000, 0, 0, domain.ErrRangeNotSatisfiable},
		{"emptyFile", "bytes=0-10", 0, 0, 0, domain.ErrRangeNotSatisfiable},
		{"noUnit", "0-499", 1000, 0, 0, ErrInvalidRange},
		{"multipart", "bytes=0-1,5-9", 1000, 0, 0, ErrInvalidRange},
		{"backwards", "bytes=500-100", 1000, 0, 0, ErrInvalidRange},
		{"garbage", "bytes=abc-def", 1000, 0, 0, ErrInvalidRange},
		{"emptySpec", "bytes=", 1000, 0, 0, ErrInvalidRange},
		{"bareDash", "bytes=-", 1000, 0, 0, ErrInvalidRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := ParseByteRange(tc.header, tc.size)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if start != tc.start || end != tc.end {
				t.Fatalf("range = [%d, %d], want [%d, %d]", start, end, tc.start, tc.end)
			}
		})
	}
}
