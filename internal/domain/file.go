package domain

import (
	"path/filepath"
	"strings"
)

type FileEntry struct {
	Index          int    `json:"index"`
	Path           string `json:"path"`
	Length         int64  `json:"length"`
	BytesCompleted int64  `json:"bytesCompleted"`
	Selected       bool   `json:"selected"`
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".webm": true,
	".mov": true, ".m4v": true, ".ts": true, ".mpg": true, ".mpeg": true,
}

var subtitleExtensions = map[string]bool{
	".srt": true, ".vtt": true, ".ass": true, ".ssa": true, ".sub": true,
}

// IsVideo reports whether the file looks like playable video content.
func (f FileEntry) IsVideo() bool {
	return videoExtensions[strings.ToLower(filepath.Ext(f.Path))]
}

// IsSubtitle reports whether the file looks like a subtitle track.
func (f FileEntry) IsSubtitle() bool {
	return subtitleExtensions[strings.ToLower(filepath.Ext(f.Path))]
}

// DefaultSelected reports whether a file should be fetched by default once
// metadata arrives. Video and subtitle files are selected; everything else is
// skipped to conserve bandwidth until a client asks for it.
func (f FileEntry) DefaultSelected() bool {
	return f.IsVideo() || f.IsSubtitle()
}
