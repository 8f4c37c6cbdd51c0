package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/54b3r/docqa-go/internal/cleanup"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
)

// errBadFilename is returned for names that are empty, hidden, or escape the
// upload directory.
var errBadFilename = errors.New("invalid filename")

// handleListFiles handles GET /list-files. It returns the names of the
// uploaded files, sorted. A missing upload directory lists as empty.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.UploadDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.FromContext(r.Context()).Error("list files failed", slog.Any("error", err))
		writeJSONError(r.Context(), w, fmt.Sprintf("list files: %v", err), http.StatusInternalServerError)
		return
	}

	// os.ReadDir returns entries sorted by filename.
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, e.Name())
	}
	writeJSON(r.Context(), w, http.StatusOK, listFilesResponse{Files: files})
}

// handleUpload handles POST /upload. The multipart "file" part is saved to
// the upload directory, chunked and indexed. The extension is checked before
// anything is written, and a file that fails to index is removed again.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	status, msg, chunks := s.upload(w, r)
	s.metrics.uploadsTotal.WithLabelValues(outcomeFor(status)).Inc()
	if status != http.StatusOK {
		if status >= http.StatusInternalServerError {
			log.Error("upload failed", slog.String("error", msg))
		} else {
			log.Warn("upload rejected", slog.String("error", msg))
		}
		writeJSONError(ctx, w, msg, status)
		return
	}

	s.metrics.uploadChunks.Observe(float64(chunks))
	writeJSON(ctx, w, http.StatusOK, uploadResponse{Message: msg, Chunks: chunks})
}

// upload performs the upload and returns the status code, the success or
// error message, and the number of chunks indexed.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (int, string, int) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	part, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), 0
		}
		return http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err), 0
	}
	defer part.Close()

	name, err := safeFilename(header.Filename)
	if err != nil {
		return http.StatusBadRequest, err.Error(), 0
	}
	if _, err := ingestion.DetectFormat(name); err != nil {
		return http.StatusBadRequest, err.Error(), 0
	}
	path, err := confineToDir(s.cfg.UploadDir, name)
	if err != nil {
		return http.StatusBadRequest, err.Error(), 0
	}

	if err := saveFile(s.cfg.UploadDir, path, part); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), 0
		}
		return http.StatusInternalServerError, err.Error(), 0
	}

	chunks, err := s.svc.Loader.Process(ctx, path)
	if err != nil {
		s.discard(r, path)
		if errors.Is(err, ingestion.ErrUnsupportedFormat) || errors.Is(err, ingestion.ErrNoContent) {
			return http.StatusBadRequest, err.Error(), 0
		}
		return http.StatusInternalServerError, err.Error(), 0
	}

	n, err := s.svc.Store.Insert(ctx, chunks)
	if err != nil {
		s.discard(r, path)
		return http.StatusInternalServerError, err.Error(), 0
	}

	logging.FromContext(ctx).Info("document indexed",
		slog.String("file", name),
		slog.Int("chunks", n),
	)
	return http.StatusOK, "Successfully indexed " + name, n
}

// discard removes a saved upload that could not be indexed.
func (s *Server) discard(r *http.Request, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.FromContext(r.Context()).Warn("remove unindexed upload",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
}

// handleDelete handles DELETE /delete/{filename}. The file is removed if it
// is still on disk, then its chunks are removed from the index. A file that
// is already gone still has its chunks removed. A failure between the two
// steps is logged and reported, not rolled back.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	name, err := safeFilename(r.PathValue("filename"))
	if err != nil {
		writeJSONError(ctx, w, err.Error(), http.StatusBadRequest)
		return
	}
	path, err := confineToDir(s.cfg.UploadDir, name)
	if err != nil {
		writeJSONError(ctx, w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("delete file failed", slog.String("file", name), slog.Any("error", err))
		writeJSONError(ctx, w, fmt.Sprintf("delete %s: %v", name, err), http.StatusInternalServerError)
		return
	}

	if err := s.svc.Store.DeleteBySource(ctx, name); err != nil {
		log.Error("file removed but its chunks remain indexed",
			slog.String("file", name),
			slog.Any("error", err),
		)
		writeJSONError(ctx, w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Info("document deleted", slog.String("file", name))
	writeJSON(ctx, w, http.StatusOK, messageResponse{Message: "Deleted " + name})
}

// handleReset handles POST /reset: every upload and the whole index are
// removed, exactly as the periodic cleanup does.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.svc.Cleanup.ResetNow(cleanup.WithTrigger(ctx, cleanup.TriggerHTTP)); err != nil {
		logging.FromContext(ctx).Error("manual reset failed", slog.Any("error", err))
		writeJSONError(ctx, w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(ctx, w, http.StatusOK, messageResponse{Message: "Knowledge base reset"})
}

// safeFilename reduces a client-supplied name to its base name. Empty, dot
// and hidden names are rejected.
func safeFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", errBadFilename, name)
	}
	return name, nil
}

// confineToDir joins name onto dir and verifies the result stays inside dir.
func confineToDir(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel != name || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", errBadFilename, name)
	}
	return path, nil
}

// saveFile writes src to path through a hidden temporary file in dir so a
// failed copy never leaves a partial upload behind. An existing file with the
// same name is replaced.
func saveFile(dir, path string, src io.Reader) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	return nil
}
