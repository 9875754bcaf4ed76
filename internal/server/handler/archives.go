package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openarb/arbd/internal/domain"
)

// archivePrefix is the key space the archiver writes into; the handler never
// serves objects outside it.
const archivePrefix = "archive/"

// ArchivesHandler serves the cold execution history written to object
// storage, so operators can inspect archived batches without S3 tooling.
type ArchivesHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchivesHandler creates an ArchivesHandler over the blob reader.
func NewArchivesHandler(reader domain.BlobReader, logger *slog.Logger) *ArchivesHandler {
	return &ArchivesHandler{reader: reader, logger: logger}
}

// List responds with metadata for archived batches under the given prefix.
// GET /api/archives?prefix=archive/executions
func (h *ArchivesHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = archivePrefix
	}
	if !strings.HasPrefix(prefix, archivePrefix) {
		writeError(w, http.StatusBadRequest, "prefix must start with "+archivePrefix)
		return
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.Error("archive listing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "archive listing failed")
		return
	}

	out := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		out = append(out, map[string]any{
			"path":          info.Path,
			"size":          info.Size,
			"last_modified": info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}

// Download streams one archived batch back to the operator.
// GET /api/archives/{path...}
func (h *ArchivesHandler) Download(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if !strings.HasPrefix(path, archivePrefix) {
		writeError(w, http.StatusNotFound, "no such archive")
		return
	}

	body, err := h.reader.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no such archive")
			return
		}
		h.logger.Error("archive fetch failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive fetch failed")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
