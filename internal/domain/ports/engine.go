package ports

import (
	"context"

	"streamgate/internal/domain"
)

// Engine is the boundary to the underlying BitTorrent implementation. Adding
// the same source twice must return the existing handle rather than erroring.
type Engine interface {
	Open(ctx context.Context, src domain.TorrentSource) (Handle, error)
	Close() error
}

// Handle wraps one engine-side torrent. Metadata-dependent methods (Files,
// TotalLength, PieceLength, NewReader) are only valid after the Ready channel
// is closed.
type Handle interface {
	InfoHash() string
	Name() string

	// Ready is closed once torrent metadata (file list, sizes) is known.
	Ready() <-chan struct{}

	Files() []domain.FileEntry
	TotalLength() int64
	PieceLength() int64
	NumPieces() int
	FileOffset(index int) (int64, error)

	SetFilePriority(index int, prio domain.Priority) error
	SetPiecePriority(start, end int, prio domain.Priority)

	NewReader(index int) (StreamReader, error)
	Stats() domain.SessionSummary
	Drop()
}
