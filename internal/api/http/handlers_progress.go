package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"streamgate/internal/domain"
)

type watchProgressView struct {
	domain.WatchProgress
	Resumable bool `json:"resumable"`
}

func (s *Server) handleWatchProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "watch progress not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit, err := parsePositiveInt(r.URL.Query().Get("limit"), true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
			return
		}
		if limit <= 0 {
			limit = 20
		}
		entries, err := s.progress.ListRecent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to list watch progress")
			return
		}
		views := make([]watchProgressView, 0, len(entries))
		for _, entry := range entries {
			views = append(views, watchProgressView{WatchProgress: entry, Resumable: s.resume.Resumable(entry)})
		}
		writeJSON(w, http.StatusOK, views)

	case http.MethodDelete:
		if err := s.progress.Clear(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to clear watch progress")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWatchProgressByKey(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "watch progress not configured")
		return
	}

	tail := strings.TrimPrefix(r.URL.Path, "/watch-progress/")
	parts := strings.SplitN(tail, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.NotFound(w, r)
		return
	}

	infoHash := strings.ToLower(parts[0])
	if !domain.IsInfoHash(infoHash) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid info hash")
		return
	}
	fileIndex, err := strconv.Atoi(parts[1])
	if err != nil || fileIndex < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fileIndex")
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := s.progress.Get(r.Context(), infoHash, fileIndex)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "no watch progress found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to get watch progress")
			return
		}
		writeJSON(w, http.StatusOK, watchProgressView{WatchProgress: entry, Resumable: s.resume.Resumable(entry)})

	case http.MethodPut:
		var body struct {
			Position    float64 `json:"position"`
			Duration    float64 `json:"duration"`
			TorrentName string  `json:"torrentName"`
			FilePath    string  `json:"filePath"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
			return
		}
		if body.Position < 0 || body.Duration < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "position and duration must be >= 0")
			return
		}

		entry := domain.WatchProgress{
			InfoHash:    infoHash,
			FileIndex:   fileIndex,
			Position:    body.Position,
			Duration:    body.Duration,
			TorrentName: body.TorrentName,
			FilePath:    body.FilePath,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := s.progress.Save(r.Context(), entry); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to save watch progress")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := s.progress.Remove(r.Context(), infoHash, fileIndex); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "no watch progress found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete watch progress")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
