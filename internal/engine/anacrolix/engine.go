package anacrolix

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

// addTimeout caps the time we wait for the anacrolix client to accept a
// magnet link. AddMagnet can block on an internal client mutex when the
// client is busy resolving metadata for another torrent.
const addTimeout = 10 * time.Second

var ErrClientBusy = errors.New("torrent client busy, try again later")

type Config struct {
	DataDir string
	// NoUpload disables seeding beyond protocol reciprocity.
	NoUpload bool
	// ListenPort is the peer listen port; 0 lets the client pick.
	ListenPort int
}

// Engine adapts an anacrolix torrent client to the ports.Engine boundary.
// Session-level bookkeeping (identifier indexes, phases) lives in the
// registry; the engine only tracks per-torrent speed samples.
type Engine struct {
	client  *torrent.Client
	speedMu sync.Mutex
	speeds  map[string]speedSample
}

func New(cfg Config) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	if cfg.NoUpload {
		clientConfig.NoUpload = true
	}
	if cfg.ListenPort != 0 {
		clientConfig.ListenPort = cfg.ListenPort
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client), nil
}

func NewWithClient(client *torrent.Client) *Engine {
	return &Engine{
		client: client,
		speeds: make(map[string]speedSample),
	}
}

// Open adds a torrent to the client and returns its handle. Adding a source
// the client already tracks returns the existing torrent, so duplicate adds
// converge on one handle instead of erroring.
func (e *Engine) Open(ctx context.Context, src domain.TorrentSource) (ports.Handle, error) {
	if e.client == nil {
		return nil, errors.New("torrent client not configured")
	}

	// Run AddMagnet / AddTorrent with a timeout so we never block the
	// caller indefinitely if the anacrolix client is busy.
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		var t *torrent.Torrent
		var err error
		if src.Magnet != "" {
			t, err = e.client.AddMagnet(src.Magnet)
		} else {
			t, err = addTorrentBytes(e.client, src.TorrentFile)
		}
		ch <- addResult{t, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return &handle{engine: e, torrent: res.t}, nil
	case <-time.After(addTimeout):
		// The goroutine may still complete the add after we return.
		// Spawn a cleanup goroutine to drop the orphaned torrent.
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, ErrClientBusy
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, ctx.Err()
	}
}

func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

type speedSample struct {
	at        time.Time
	bytesRead int64
}

func (e *Engine) sampleSpeed(hash string, stats torrent.TorrentStats, now time.Time) int64 {
	currentRead := stats.BytesReadUsefulData.Int64()

	e.speedMu.Lock()
	defer e.speedMu.Unlock()

	prev, ok := e.speeds[hash]
	e.speeds[hash] = speedSample{at: now, bytesRead: currentRead}

	if !ok || prev.at.IsZero() {
		return 0
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0
	}
	delta := currentRead - prev.bytesRead
	if delta < 0 {
		delta = 0
	}
	return int64(float64(delta) / dt)
}

func (e *Engine) forgetSpeed(hash string) {
	e.speedMu.Lock()
	delete(e.speeds, hash)
	e.speedMu.Unlock()
}

// freeOSMemory triggers garbage collection and returns freed memory to the
// OS. Called after dropping a torrent; without it Go's GC may hold freed
// memory long enough to OOM memory-constrained systems (Docker, NAS).
func freeOSMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}
