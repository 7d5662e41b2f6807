package domain

import "time"

// SessionSummary is a point-in-time snapshot of one session for listings and
// status polls. Statistics fields are eventually consistent; callers must not
// assume cross-field atomicity.
type SessionSummary struct {
	InfoHash      string       `json:"infoHash"`
	EphemeralID   string       `json:"id"`
	Name          string       `json:"name"`
	Phase         SessionPhase `json:"phase"`
	TotalBytes    int64        `json:"totalBytes"`
	DoneBytes     int64        `json:"doneBytes"`
	Progress      float64      `json:"progress"`
	DownloadSpeed int64        `json:"downloadSpeed"`
	Peers         int          `json:"peers"`
	Files         []FileEntry  `json:"files,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}
