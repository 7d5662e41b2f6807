// Package registry is the single source of truth for live torrent sessions.
// It maps every identifier a caller may hold (info-hash, ephemeral id,
// display name, the original magnet) onto one session, absorbs duplicate
// adds, and provides the bounded wait that lets just-created sessions be
// polled without premature not-found responses.
package registry

import (
	"context"
	"crypto/sha1"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/metrics"
)

type Config struct {
	// ReadinessTimeout bounds AwaitReady when the caller passes no timeout.
	ReadinessTimeout time.Duration
	// MetadataTimeout is how long a resolving session may wait for torrent
	// metadata before it is torn down (zero-peer magnets).
	MetadataTimeout time.Duration
	// IdleTimeout enables the idle reaper when positive: sessions not
	// touched for this long are removed.
	IdleTimeout time.Duration
	// MaxSessions caps concurrent sessions when positive; creates beyond
	// the cap fail with ErrSessionLimit. Duplicate adds always succeed.
	MaxSessions int
}

func (c Config) withDefaults() Config {
	if c.ReadinessTimeout <= 0 {
		c.ReadinessTimeout = 25 * time.Second
	}
	if c.MetadataTimeout <= 0 {
		c.MetadataTimeout = 10 * time.Minute
	}
	return c
}

type Registry struct {
	engine ports.Engine
	log    *slog.Logger
	cfg    Config

	mu          sync.RWMutex
	byHash      map[string]*Session
	byEphemeral map[string]*Session

	group  singleflight.Group
	cancel context.CancelFunc
}

func New(engine ports.Engine, cfg Config, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		engine:      engine,
		log:         log,
		cfg:         cfg.withDefaults(),
		byHash:      make(map[string]*Session),
		byEphemeral: make(map[string]*Session),
	}
	if r.cfg.IdleTimeout > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		go r.idleReaper(ctx)
	}
	return r
}

// Close stops the idle reaper. It does not close the engine; the engine's
// lifetime belongs to the process, not the registry.
func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

// CreateFromSource adds a torrent and registers a session for it. The call is
// idempotent: a source whose info-hash is already live returns the existing
// session with existing=true. Concurrent adds of the same source collapse
// onto a single engine call.
func (r *Registry) CreateFromSource(ctx context.Context, src domain.TorrentSource) (*Session, bool, error) {
	if src.Magnet == "" && len(src.TorrentFile) == 0 {
		return nil, false, domain.ErrInvalidSource
	}

	// Fast path: a magnet whose hash is already registered needs no engine
	// round trip at all.
	if hash, ok := domain.InfoHashFromMagnet(src.Magnet); ok {
		if s := r.lookupHash(hash); s != nil {
			s.Touch()
			return s, true, nil
		}
	}

	key := src.Magnet
	if key == "" {
		key = fmt.Sprintf("file:%x", sha1.Sum(src.TorrentFile))
	}

	type createResult struct {
		session  *Session
		existing bool
	}
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		h, err := r.engine.Open(ctx, src)
		if err != nil {
			return nil, err
		}
		hash := strings.ToLower(h.InfoHash())

		r.mu.Lock()
		if s, ok := r.byHash[hash]; ok {
			// The engine returned a torrent we already track (duplicate
			// add through a differently-spelled source).
			r.mu.Unlock()
			s.Touch()
			return createResult{s, true}, nil
		}
		if r.cfg.MaxSessions > 0 && len(r.byHash) >= r.cfg.MaxSessions {
			r.mu.Unlock()
			h.Drop()
			return nil, domain.ErrSessionLimit
		}
		s := newSession(h, hash, uuid.NewString())
		r.byHash[hash] = s
		r.byEphemeral[s.ephemeralID] = s
		r.mu.Unlock()

		r.log.Info("session created",
			slog.String("infoHash", hash),
			slog.String("id", s.ephemeralID),
		)
		go r.watchReadiness(s)
		return createResult{s, false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(createResult)
	return res.session, res.existing, nil
}

// watchReadiness waits for torrent metadata, then applies the default file
// selection and publishes the file list. A session whose metadata never
// arrives is torn down so its resources and identifiers do not leak.
func (r *Registry) watchReadiness(s *Session) {
	select {
	case <-s.handle.Ready():
	case <-time.After(r.cfg.MetadataTimeout):
		r.log.Warn("metadata wait timed out, removing session",
			slog.String("infoHash", s.InfoHash()),
			slog.Duration("timeout", r.cfg.MetadataTimeout),
		)
		metrics.MetadataTimeoutsTotal.Inc()
		r.teardown(s, domain.ErrTimedOut)
		return
	case <-s.removed:
		return
	}

	files := s.handle.Files()
	for i := range files {
		selected := files[i].DefaultSelected()
		files[i].Selected = selected
		prio := domain.PriorityNone
		if selected {
			prio = domain.PriorityNormal
		}
		if err := s.handle.SetFilePriority(files[i].Index, prio); err != nil {
			r.log.Warn("default file selection failed",
				slog.String("infoHash", s.InfoHash()),
				slog.Int("fileIndex", files[i].Index),
				slog.Any("error", err),
			)
		}
	}

	if s.markReady(s.handle.Name(), files) {
		r.log.Info("session metadata ready",
			slog.String("infoHash", s.InfoHash()),
			slog.String("name", s.handle.Name()),
			slog.Int("files", len(files)),
		)
	}
}

// AwaitReady blocks until the session's metadata is available, the session is
// removed, the timeout fires, or ctx is cancelled. A non-positive timeout
// uses the configured default.
func (r *Registry) AwaitReady(ctx context.Context, s *Session, timeout time.Duration) error {
	if s.Phase().Ready() {
		return nil
	}
	if timeout <= 0 {
		timeout = r.cfg.ReadinessTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		return nil
	case <-s.removed:
		if cause := s.failureCause(); cause != nil {
			return cause
		}
		return domain.ErrSessionRemoved
	case <-timer.C:
		return domain.ErrTimedOut
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve maps an identifier to its session without creating anything. The
// lookup order is info-hash, ephemeral id, magnet hash, then display name
// (exact before substring, most recent creation winning ties).
func (r *Registry) Resolve(identifier string) (*Session, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil, domain.ErrNotFound
	}

	if domain.IsInfoHash(id) {
		if s := r.lookupHash(strings.ToLower(id)); s != nil {
			s.Touch()
			return s, nil
		}
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	s, ok := r.byEphemeral[id]
	r.mu.RUnlock()
	if ok {
		s.Touch()
		return s, nil
	}

	if hash, ok := domain.InfoHashFromMagnet(id); ok {
		if s := r.lookupHash(hash); s != nil {
			s.Touch()
			return s, nil
		}
		return nil, domain.ErrNotFound
	}

	if s := r.matchByName(id); s != nil {
		s.Touch()
		return s, nil
	}
	return nil, domain.ErrNotFound
}

// ResolveOrCreate resolves an identifier, falling back to an implicit add
// when the identifier is itself a valid torrent source. Callers that only
// hold the original magnet thus reach the same session as everyone else.
func (r *Registry) ResolveOrCreate(ctx context.Context, identifier string) (*Session, error) {
	s, err := r.Resolve(identifier)
	if err == nil {
		return s, nil
	}
	src, perr := domain.ParseSource(identifier)
	if perr != nil {
		return nil, domain.ErrNotFound
	}
	s, _, err = r.CreateFromSource(ctx, src)
	return s, err
}

// List returns summaries of all live sessions, newest first.
func (r *Registry) List() []domain.SessionSummary {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byHash))
	for _, s := range r.byHash {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].createdAt.After(sessions[j].createdAt)
	})
	summaries := make([]domain.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, s.Summary())
	}
	return summaries
}

// Remove tears down the session an identifier resolves to and reports how
// many downloaded bytes were released.
func (r *Registry) Remove(identifier string) (int64, error) {
	s, err := r.Resolve(identifier)
	if err != nil {
		return 0, err
	}
	freed, ok := r.teardown(s, nil)
	if !ok {
		return 0, domain.ErrNotFound
	}
	return freed, nil
}

// RemoveAll tears down every live session.
func (r *Registry) RemoveAll() (int, int64) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byHash))
	for _, s := range r.byHash {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	var count int
	var freed int64
	for _, s := range sessions {
		if f, ok := r.teardown(s, nil); ok {
			count++
			freed += f
		}
	}
	return count, freed
}

// teardown marks the session removed, unregisters its identifiers, and drops
// the engine-side torrent. Safe to call concurrently and while streams are in
// flight: readers observe the removed channel and fail cleanly.
func (r *Registry) teardown(s *Session, cause error) (int64, bool) {
	freed := s.handle.Stats().DoneBytes
	if !s.markRemoved(cause) {
		return 0, false
	}

	r.mu.Lock()
	delete(r.byHash, s.InfoHash())
	delete(r.byEphemeral, s.ephemeralID)
	r.mu.Unlock()

	s.handle.Drop()
	r.log.Info("session removed",
		slog.String("infoHash", s.InfoHash()),
		slog.String("freed", humanize.Bytes(uint64(freed))),
	)
	return freed, true
}

func (r *Registry) lookupHash(hash string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byHash[hash]
}

// matchByName finds a session by display name: exact match first, then
// substring, both case-insensitive. Ambiguous substring matches resolve to
// the most recently created session; this is a lossy heuristic, not a
// guarantee.
func (r *Registry) matchByName(name string) *Session {
	needle := strings.ToLower(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Session
	for _, s := range r.byHash {
		if strings.ToLower(s.Name()) == needle {
			if best == nil || s.createdAt.After(best.createdAt) {
				best = s
			}
		}
	}
	if best != nil {
		return best
	}
	for _, s := range r.byHash {
		n := strings.ToLower(s.Name())
		if n != "" && strings.Contains(n, needle) {
			if best == nil || s.createdAt.After(best.createdAt) {
				best = s
			}
		}
	}
	return best
}

func (r *Registry) idleReaper(ctx context.Context) {
	interval := r.cfg.IdleTimeout / 2
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapIdle()
		}
	}
}

func (r *Registry) reapIdle() {
	now := time.Now().UTC()

	r.mu.RLock()
	var candidates []*Session
	for _, s := range r.byHash {
		if now.Sub(s.lastAccessed()) > r.cfg.IdleTimeout {
			candidates = append(candidates, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range candidates {
		r.log.Info("reaping idle session",
			slog.String("infoHash", s.InfoHash()),
			slog.Duration("idleTimeout", r.cfg.IdleTimeout),
		)
		r.teardown(s, nil)
	}
}
