package domain

import "time"

// WatchProgress records playback position for one file of one torrent. It is
// keyed by (InfoHash, FileIndex) and outlives the session itself, so history
// survives session removal and process restarts.
type WatchProgress struct {
	InfoHash    string    `json:"infoHash"`
	FileIndex   int       `json:"fileIndex"`
	Position    float64   `json:"position"`
	Duration    float64   `json:"duration"`
	TorrentName string    `json:"torrentName,omitempty"`
	FilePath    string    `json:"filePath,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ResumePolicy decides whether a stored position is worth offering as a
// resume point. Positions below the low watermark are treated as not started;
// positions above the high watermark as finished.
type ResumePolicy struct {
	MinFraction float64
	MaxFraction float64
}

func DefaultResumePolicy() ResumePolicy {
	return ResumePolicy{MinFraction: 0.02, MaxFraction: 0.95}
}

// Resumable reports whether playback should resume from the stored position.
func (p ResumePolicy) Resumable(w WatchProgress) bool {
	if w.Duration <= 0 {
		return false
	}
	frac := w.Position / w.Duration
	return frac >= p.MinFraction && frac <= p.MaxFraction
}
