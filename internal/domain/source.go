package domain

import (
	"regexp"
	"strings"
)

// TorrentSource is a caller-supplied origin for a session: exactly one of
// Magnet or TorrentFile is set. A bare info-hash input is normalized into a
// magnet URI with a default tracker set before it gets here.
type TorrentSource struct {
	Magnet      string `json:"magnet,omitempty"`
	TorrentFile []byte `json:"-"`
}

var infoHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// defaultTrackers is appended when synthesizing a magnet from a bare hash, so
// that hash-only adds still find peers without DHT bootstrap luck.
var defaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.demonii.com:1337/announce",
	"udp://tracker.openbittorrent.com:6969/announce",
	"udp://exodus.desync.com:6969/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://tracker.tiny-vps.com:6969/announce",
	"udp://retracker.lanta-net.ru:2710/announce",
}

// IsInfoHash reports whether s is a bare 40-hex-char info-hash.
func IsInfoHash(s string) bool {
	return infoHashPattern.MatchString(s)
}

// IsMagnet reports whether s is a magnet URI.
func IsMagnet(s string) bool {
	return strings.HasPrefix(s, "magnet:?")
}

// MagnetFromHash synthesizes a magnet URI for a bare info-hash.
func MagnetFromHash(hash string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(strings.ToLower(hash))
	for _, tr := range defaultTrackers {
		b.WriteString("&tr=")
		b.WriteString(tr)
	}
	return b.String()
}

// InfoHashFromMagnet extracts the lowercase info-hash from a magnet URI.
// Returns false for magnets without a recognizable btih exact topic.
func InfoHashFromMagnet(magnet string) (string, bool) {
	const topic = "urn:btih:"
	i := strings.Index(magnet, topic)
	if i < 0 {
		return "", false
	}
	rest := magnet[i+len(topic):]
	if j := strings.IndexByte(rest, '&'); j >= 0 {
		rest = rest[:j]
	}
	if !IsInfoHash(rest) {
		return "", false
	}
	return strings.ToLower(rest), true
}

// ParseSource interprets a textual identifier as a torrent source. It accepts
// magnet URIs and bare 40-hex info-hashes; anything else is ErrInvalidSource.
func ParseSource(s string) (TorrentSource, error) {
	s = strings.TrimSpace(s)
	switch {
	case IsMagnet(s):
		return TorrentSource{Magnet: s}, nil
	case IsInfoHash(s):
		return TorrentSource{Magnet: MagnetFromHash(s)}, nil
	default:
		return TorrentSource{}, ErrInvalidSource
	}
}

// SourceFromTorrentFile wraps raw .torrent file bytes as a source.
func SourceFromTorrentFile(data []byte) (TorrentSource, error) {
	if len(data) == 0 {
		return TorrentSource{}, ErrInvalidSource
	}
	return TorrentSource{TorrentFile: data}, nil
}
