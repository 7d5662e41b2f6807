package apihttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"streamgate/internal/domain"
	"streamgate/internal/metrics"
	"streamgate/internal/stream"
)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, identifier, fileIndexRaw string) {
	fileIndex, err := strconv.Atoi(fileIndexRaw)
	if err != nil || fileIndex < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fileIndex")
		return
	}

	sess, err := s.resolveReady(r.Context(), identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	file, err := sess.File(fileIndex)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	size := file.Length

	ext := strings.ToLower(path.Ext(file.Path))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = fallbackContentType(ext)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	// Close the connection after streaming to prevent keep-alive from holding
	// the reader open after the player stops playback.
	w.Header().Set("Connection", "close")

	// HEAD request: return headers only, no body.
	if r.Method == http.MethodHead {
		if size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	start, end := int64(0), int64(-1)
	rangeHeader := r.Header.Get("Range")
	hasRange := rangeHeader != ""
	if hasRange {
		rs, re, rerr := stream.ParseByteRange(rangeHeader, size)
		if errors.Is(rerr, stream.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid range")
			return
		}
		if rerr != nil {
			s.writeRangeNotSatisfiable(w, size)
			return
		}
		start = rs
		if re >= 0 {
			end = re + 1
		}
	}

	strm, err := s.streamer.Open(r.Context(), sess, fileIndex, start, end, hasRange)
	if err != nil {
		if errors.Is(err, domain.ErrRangeNotSatisfiable) {
			s.writeRangeNotSatisfiable(w, size)
			return
		}
		writeDomainError(w, err)
		return
	}
	defer strm.Body.Close()
	metrics.StreamsOpenedTotal.Inc()

	w.Header().Set("Content-Length", strconv.FormatInt(strm.ContentLength(), 10))
	if strm.IsPartial {
		w.Header().Set("Content-Range", strm.ContentRange())
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	n, err := io.Copy(w, strm.Body)
	metrics.StreamBytesTotal.Add(float64(n))
	if err != nil {
		metrics.StreamInterruptionsTotal.Inc()
		s.logger.Debug("stream copy interrupted",
			slog.String("infoHash", sess.InfoHash()),
			slog.Int("fileIndex", fileIndex),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) writeRangeNotSatisfiable(w http.ResponseWriter, size int64) {
	if size >= 0 {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
	}
	w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
}
