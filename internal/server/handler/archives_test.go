package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarb/arbd/internal/domain"
)

type fakeBlobReader struct {
	objects map[string]string
	infos   []domain.BlobInfo
}

func (f *fakeBlobReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeBlobReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for _, info := range f.infos {
		if strings.HasPrefix(info.Path, prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (f *fakeBlobReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func newArchivesMux(reader domain.BlobReader) *http.ServeMux {
	h := NewArchivesHandler(reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archives", h.List)
	mux.HandleFunc("GET /api/archives/{path...}", h.Download)
	return mux
}

func TestArchivesList(t *testing.T) {
	reader := &fakeBlobReader{infos: []domain.BlobInfo{
		{Path: "archive/executions/2026-07.jsonl", Size: 1024, LastModified: time.Now()},
		{Path: "archive/executions/2026-08.jsonl", Size: 2048, LastModified: time.Now()},
	}}
	mux := newArchivesMux(reader)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "archive/executions/2026-07.jsonl")
	assert.Contains(t, rec.Body.String(), "archive/executions/2026-08.jsonl")
}

func TestArchivesListRejectsForeignPrefix(t *testing.T) {
	mux := newArchivesMux(&fakeBlobReader{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives?prefix=secrets/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchivesDownload(t *testing.T) {
	reader := &fakeBlobReader{objects: map[string]string{
		"archive/executions/2026-08.jsonl": `{"id":"a1"}` + "\n",
	}}
	mux := newArchivesMux(reader)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/archive/executions/2026-08.jsonl", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"id":"a1"}`+"\n", rec.Body.String())
}

func TestArchivesDownloadMissing(t *testing.T) {
	mux := newArchivesMux(&fakeBlobReader{objects: map[string]string{}})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/archive/executions/none.jsonl", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
