package stream

const (
	defaultReadaheadBytes = 16 << 20
	// DefaultChunkBytes bounds the response to an open-ended range request.
	// Serving the whole remaining file for "bytes=X-" would let one request
	// starve the scheduler for every later seek; players re-request anyway.
	DefaultChunkBytes = 8 << 20

	priorityWindowMultiplier int64 = 4
	minPriorityWindowBytes   int64 = 16 << 20
	maxPriorityWindowBytes   int64 = 256 << 20
)

// priorityWindow sizes the initial piece-priority window from the configured
// readahead and the file size. Large files get up to 1% of their length so
// high-bitrate content keeps a usable buffer.
func priorityWindow(readahead, fileLength int64) int64 {
	if readahead <= 0 {
		readahead = defaultReadaheadBytes
	}
	window := readahead * priorityWindowMultiplier
	if window < minPriorityWindowBytes {
		window = minPriorityWindowBytes
	}
	if fileLength > 0 {
		scaled := fileLength / 100
		if scaled > window {
			window = scaled
		}
	}
	if window > maxPriorityWindowBytes {
		window = maxPriorityWindowBytes
	}
	return window
}
