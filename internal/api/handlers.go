package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vidfetch/internal/downloader"
	"vidfetch/internal/jobs"
	"vidfetch/internal/library"
	"vidfetch/pkg/models"
)

const maxBodyBytes = 1 << 20

// Not every host ships a mime.types with video entries
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".m3u8": "application/vnd.apple.mpegurl",
}

type submitResponse struct {
	Success    bool   `json:"success"`
	DownloadID string `json:"download_id"`
	Message    string `json:"message"`
}

type listResponse struct {
	Downloads []models.Job `json:"downloads"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// formValue reads key from a JSON object body or, failing that, the form
func formValue(r *http.Request, key string) string {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			return ""
		}
		s, _ := body[key].(string)
		return strings.TrimSpace(s)
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	return strings.TrimSpace(r.FormValue(key))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	videoURL := formValue(r, "url")
	if videoURL == "" {
		writeError(w, http.StatusBadRequest, "No URL provided")
		return
	}

	id, err := s.orch.Submit(videoURL)
	if err != nil {
		if errors.Is(err, downloader.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.log.Error("failed to submit download", zap.String("url", videoURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Success:    true,
		DownloadID: id,
		Message:    "Download started",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.orch.GetStatus(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Download not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Downloads: s.orch.ListJobs()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.orch.Cancel(chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "Download not found")
	case errors.Is(err, downloader.ErrJobFinished):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := formValue(r, "file_path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "No file path provided")
		return
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.library.Root(), p)
	}

	err := s.library.Remove(p)
	switch {
	case err == nil:
		s.log.Info("file deleted", zap.String("path", p))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "File deleted successfully"})
	case errors.Is(err, library.ErrOutsideRoot):
		writeError(w, http.StatusForbidden, "Invalid file path")
	case errors.Is(err, library.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to delete file: "+err.Error())
	}
}

// fileParam returns the file name segment decoded exactly once. chi routes on
// RawPath when the request has one, and only then is the parameter still escaped.
func fileParam(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		return name, true
	}
	decoded, err := url.PathUnescape(name)
	return decoded, err == nil
}

// handleFile serves a finished file from the library, as an attachment or inline
func (s *Server) handleFile(attachment bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := fileParam(r)
		if !ok || strings.HasSuffix(name, library.PartialSuffix) {
			http.NotFound(w, r)
			return
		}

		p, err := s.library.PathFor(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		entry, err := s.library.Stat(p)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		f, err := os.Open(entry.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		disposition := "inline"
		if attachment {
			disposition = "attachment"
		}
		w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": entry.Name}))
		if ct, ok := videoTypes[strings.ToLower(filepath.Ext(entry.Name))]; ok {
			w.Header().Set("Content-Type", ct)
		}

		http.ServeContent(w, r, entry.Name, entry.ModTime, f)
	}
}
