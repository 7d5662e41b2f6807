package anacrolix

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

func addTorrentBytes(client *torrent.Client, data []byte) (*torrent.Torrent, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidSource
	}
	return client.AddTorrent(mi)
}

type handle struct {
	engine  *Engine
	torrent *torrent.Torrent
}

func (h *handle) InfoHash() string {
	return h.torrent.InfoHash().HexString()
}

func (h *handle) Name() string {
	if !h.infoReady() {
		return ""
	}
	return h.torrent.Name()
}

func (h *handle) Ready() <-chan struct{} {
	return h.torrent.GotInfo()
}

func (h *handle) infoReady() bool {
	select {
	case <-h.torrent.GotInfo():
		return true
	default:
		return false
	}
}

func (h *handle) Files() (mapped []domain.FileEntry) {
	if !h.infoReady() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mapping torrent files recovered from panic",
				slog.Any("error", r),
				slog.String("infoHash", h.InfoHash()),
			)
			mapped = nil
		}
	}()

	files := h.torrent.Files()
	mapped = make([]domain.FileEntry, 0, len(files))
	for i, f := range files {
		mapped = append(mapped, domain.FileEntry{
			Index:          i,
			Path:           f.Path(),
			Length:         f.Length(),
			BytesCompleted: f.BytesCompleted(),
			Selected:       f.Priority() != torrent.PiecePriorityNone,
		})
	}
	return mapped
}

func (h *handle) TotalLength() int64 {
	if !h.infoReady() {
		return 0
	}
	return h.torrent.Length()
}

func (h *handle) PieceLength() int64 {
	if !h.infoReady() {
		return 0
	}
	return int64(h.torrent.Info().PieceLength)
}

func (h *handle) NumPieces() int {
	if !h.infoReady() {
		return 0
	}
	return h.torrent.NumPieces()
}

func (h *handle) FileOffset(index int) (int64, error) {
	if !h.infoReady() {
		return 0, domain.ErrFileNotAvailable
	}
	files := h.torrent.Files()
	if index < 0 || index >= len(files) {
		return 0, domain.ErrFileNotAvailable
	}
	return files[index].Offset(), nil
}

func (h *handle) SetFilePriority(index int, prio domain.Priority) error {
	if !h.infoReady() {
		return domain.ErrFileNotAvailable
	}
	files := h.torrent.Files()
	if index < 0 || index >= len(files) {
		return domain.ErrFileNotAvailable
	}
	files[index].SetPriority(mapPriority(prio))
	return nil
}

// SetPiecePriority applies prio to the half-open torrent-absolute piece span
// [start, end). Out-of-range indices are clamped; anacrolix panics on some
// races around torrent close, so the loop is guarded.
func (h *handle) SetPiecePriority(start, end int, prio domain.Priority) {
	if !h.infoReady() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("piece priority recovered from panic",
				slog.Any("panic", r),
				slog.String("infoHash", h.InfoHash()),
			)
		}
	}()

	n := h.torrent.NumPieces()
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	target := mapPriority(prio)
	for i := start; i < end; i++ {
		h.torrent.Piece(i).SetPriority(target)
	}
}

func (h *handle) NewReader(index int) (ports.StreamReader, error) {
	if !h.infoReady() {
		return nil, domain.ErrFileNotAvailable
	}
	files := h.torrent.Files()
	if index < 0 || index >= len(files) {
		return nil, domain.ErrFileNotAvailable
	}
	return files[index].NewReader(), nil
}

func (h *handle) Stats() domain.SessionSummary {
	hash := h.InfoHash()
	stats := h.torrent.Stats()
	summary := domain.SessionSummary{
		InfoHash:      hash,
		Name:          h.Name(),
		Peers:         stats.ActivePeers,
		DownloadSpeed: h.engine.sampleSpeed(hash, stats, time.Now().UTC()),
	}
	if h.infoReady() {
		summary.TotalBytes = h.torrent.Length()
		summary.DoneBytes = h.torrent.BytesCompleted()
		if summary.TotalBytes > 0 {
			summary.Progress = float64(summary.DoneBytes) / float64(summary.TotalBytes)
		}
	}
	return summary
}

func (h *handle) Drop() {
	hash := h.InfoHash()
	h.torrent.Drop()
	h.engine.forgetSpeed(hash)
	freeOSMemory()
}
