package apihttp

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/metrics"
	"streamgate/internal/registry"
)

func (s *Server) handleTorrents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodGet:
		s.handleListSessions(w, r)
	case http.MethodDelete:
		s.handleRemoveAll(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createSessionRequest struct {
	Source string `json:"source"`
	Magnet string `json:"magnet,omitempty"`
}

type createSessionResponse struct {
	domain.SessionSummary
	Status string `json:"status"` // "loaded" or "existing"
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return
	}

	var body createSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}

	raw := strings.TrimSpace(body.Source)
	if raw == "" {
		raw = strings.TrimSpace(body.Magnet)
	}
	src, err := domain.ParseSource(raw)
	if err != nil {
		metrics.SessionCreatesTotal.WithLabelValues("error").Inc()
		writeDomainError(w, err)
		return
	}

	// Cap the handler execution time so we never block indefinitely.
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	s.createAndRespond(ctx, w, src)
}

func (s *Server) handleUploadTorrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	const maxMemory = 5 << 20 // .torrent files are small
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("torrent")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing torrent file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxMemory))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read torrent file")
		return
	}

	src, err := domain.SourceFromTorrentFile(data)
	if err != nil {
		metrics.SessionCreatesTotal.WithLabelValues("error").Inc()
		writeDomainError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	s.createAndRespond(ctx, w, src)
}

func (s *Server) createAndRespond(ctx context.Context, w http.ResponseWriter, src domain.TorrentSource) {
	sess, existing, err := s.registry.CreateFromSource(ctx, src)
	if err != nil {
		metrics.SessionCreatesTotal.WithLabelValues("error").Inc()
		writeDomainError(w, err)
		return
	}

	resp := createSessionResponse{SessionSummary: sess.Summary(), Status: "loaded"}
	status := http.StatusCreated
	if existing {
		resp.Status = "existing"
		status = http.StatusOK
		metrics.SessionCreatesTotal.WithLabelValues("existing").Inc()
	} else {
		metrics.SessionCreatesTotal.WithLabelValues("created").Inc()
	}
	writeJSON(w, status, resp)
}

type sessionList struct {
	Items []domain.SessionSummary `json:"items"`
	Count int                     `json:"count"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries := s.registry.List()
	writeJSON(w, http.StatusOK, sessionList{Items: summaries, Count: len(summaries)})
}

type removeResponse struct {
	FreedBytes int64 `json:"freedBytes"`
}

type removeAllResponse struct {
	Count      int   `json:"count"`
	FreedBytes int64 `json:"freedBytes"`
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	count, freed := s.registry.RemoveAll()
	writeJSON(w, http.StatusOK, removeAllResponse{Count: count, FreedBytes: freed})
}

func (s *Server) handleTorrentByIdentifier(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/torrents/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")
	identifier := parts[0]
	if identifier == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			s.handleGetSession(w, r, identifier)
		case http.MethodDelete:
			s.handleRemoveSession(w, r, identifier)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "files":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleListFiles(w, r, identifier)
	case len(parts) == 2 && parts[1] == "stats":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleStats(w, r, identifier)
	case len(parts) == 4 && parts[1] == "files" && parts[3] == "stream":
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleStream(w, r, identifier, parts[2])
	default:
		http.NotFound(w, r)
	}
}

// resolveReady looks up a session and waits for its metadata using the
// registry's default readiness timeout. A source-shaped identifier (magnet,
// bare info-hash) that matches nothing is an implicit create, so a GET by
// magnet works before any POST; after removal the same identifier
// legitimately starts a fresh session. A session that exists but is still
// resolving yields ErrTimedOut, never ErrNotFound.
func (s *Server) resolveReady(ctx context.Context, identifier string) (*registry.Session, error) {
	sess, err := s.registry.ResolveOrCreate(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if err := s.registry.AwaitReady(ctx, sess, 0); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, identifier string) {
	sess, err := s.resolveReady(r.Context(), identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

type fileList struct {
	Items []domain.FileEntry `json:"items"`
	Count int                `json:"count"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, identifier string) {
	sess, err := s.resolveReady(r.Context(), identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if files, ok := s.filesCache.Get(sess.InfoHash()); ok {
		writeJSON(w, http.StatusOK, fileList{Items: files, Count: len(files)})
		return
	}

	files := sess.Handle().Files()
	s.filesCache.Set(sess.InfoHash(), files)
	writeJSON(w, http.StatusOK, fileList{Items: files, Count: len(files)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, identifier string) {
	sess, err := s.registry.Resolve(identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request, identifier string) {
	freed, err := s.registry.Remove(identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removeResponse{FreedBytes: freed})
}
