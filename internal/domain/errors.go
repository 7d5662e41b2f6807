package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidSource       = errors.New("invalid torrent source")
	ErrTimedOut            = errors.New("timed out waiting for metadata")
	ErrFileNotAvailable    = errors.New("file not available")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	ErrStreamInterrupted   = errors.New("stream interrupted")
	ErrSessionRemoved      = errors.New("session removed")
	ErrSessionLimit        = errors.New("session limit reached")
)
