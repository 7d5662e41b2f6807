package registry

import (
	"sync"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

// Session wraps one engine handle with the identifier and readiness state the
// registry tracks for it. All mutable state is guarded by mu; the ready and
// removed channels are closed exactly once on the corresponding transition.
type Session struct {
	ephemeralID string
	createdAt   time.Time
	handle      ports.Handle

	mu         sync.RWMutex
	infoHash   string
	name       string
	phase      domain.SessionPhase
	files      []domain.FileEntry
	lastAccess time.Time
	failure    error

	ready   chan struct{}
	removed chan struct{}
}

func newSession(h ports.Handle, infoHash, ephemeralID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ephemeralID: ephemeralID,
		createdAt:   now,
		handle:      h,
		infoHash:    infoHash,
		phase:       domain.PhaseResolving,
		lastAccess:  now,
		ready:       make(chan struct{}),
		removed:     make(chan struct{}),
	}
}

func (s *Session) EphemeralID() string  { return s.ephemeralID }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) Handle() ports.Handle { return s.handle }

func (s *Session) InfoHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infoHash
}

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) Phase() domain.SessionPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Files returns a snapshot of the file list. Empty until metadata is ready.
func (s *Session) Files() []domain.FileEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FileEntry(nil), s.files...)
}

// File returns one entry by index, failing when metadata is not yet known or
// the index is out of range.
func (s *Session) File(index int) (domain.FileEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.phase.Ready() {
		return domain.FileEntry{}, domain.ErrFileNotAvailable
	}
	if index < 0 || index >= len(s.files) {
		return domain.FileEntry{}, domain.ErrFileNotAvailable
	}
	return s.files[index], nil
}

// SelectFile marks a file for download and raises its engine priority. The
// files slice and the engine call are updated under the session lock so
// concurrent readers never observe a half-applied selection.
func (s *Session) SelectFile(index int) (domain.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.Ready() {
		return domain.FileEntry{}, domain.ErrFileNotAvailable
	}
	if index < 0 || index >= len(s.files) {
		return domain.FileEntry{}, domain.ErrFileNotAvailable
	}
	if !s.files[index].Selected {
		s.files[index].Selected = true
		if err := s.handle.SetFilePriority(index, domain.PriorityNormal); err != nil {
			return domain.FileEntry{}, err
		}
	}
	return s.files[index], nil
}

// Summary produces a point-in-time snapshot. A session that has started
// moving bytes is promoted from metadataReady to active as a side effect, so
// the first observer of progress records the transition.
func (s *Session) Summary() domain.SessionSummary {
	stats := s.handle.Stats()

	s.mu.Lock()
	if s.phase == domain.PhaseMetadataReady && stats.DoneBytes > 0 {
		s.phase = domain.PhaseActive
	}
	summary := stats
	summary.EphemeralID = s.ephemeralID
	summary.Phase = s.phase
	summary.CreatedAt = s.createdAt
	if summary.InfoHash == "" {
		summary.InfoHash = s.infoHash
	}
	if s.name != "" {
		summary.Name = s.name
	}
	s.mu.Unlock()
	return summary
}

// Touch refreshes the idle clock. Stream reads call it so an active
// playback is never reaped, no matter how long it runs.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) lastAccessed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

// markReady transitions to metadataReady and publishes the file list. No-op
// if the session was removed first.
func (s *Session) markReady(name string, files []domain.FileEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !domain.CanTransition(s.phase, domain.PhaseMetadataReady) {
		return false
	}
	s.phase = domain.PhaseMetadataReady
	s.name = name
	s.files = files
	close(s.ready)
	return true
}

// MarkActive records the first observed byte transfer.
func (s *Session) MarkActive() {
	s.mu.Lock()
	if domain.CanTransition(s.phase, domain.PhaseActive) {
		s.phase = domain.PhaseActive
	}
	s.mu.Unlock()
}

// markRemoved transitions to the terminal phase, recording why. Returns false
// when the session was already removed.
func (s *Session) markRemoved(cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == domain.PhaseRemoved {
		return false
	}
	s.phase = domain.PhaseRemoved
	s.failure = cause
	close(s.removed)
	return true
}

// Removed reports session teardown to in-flight readers.
func (s *Session) Removed() <-chan struct{} { return s.removed }

func (s *Session) failureCause() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}
