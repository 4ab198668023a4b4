package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-docstore/internal/app"
	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/metrics"
	"github.com/prn-tf/alexander-docstore/internal/service"
)

const testMaxUpload = 4096

type testServer struct {
	state   *service.State
	app     *app.App
	handler http.Handler
}

type serverOptions struct {
	chunkSize int
	maxUpload int64
}

func newTestServer(t *testing.T, ready bool) *testServer {
	t.Helper()
	return newTestServerWith(t, ready, serverOptions{chunkSize: 8, maxUpload: testMaxUpload})
}

func newTestServerWith(t *testing.T, ready bool, opts serverOptions) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dir, "docstore.db"),
		},
		Storage: config.StorageConfig{
			Backend:       "database",
			ChunkSize:     opts.chunkSize,
			MaxUploadSize: opts.maxUpload,
			Compression:   "none",
		},
	}

	state := service.NewState()
	m := metrics.New()

	a, err := app.Open(context.Background(), cfg, zerolog.Nop(), app.Options{
		Migrate:   true,
		Metrics:   m,
		Readiness: state,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	if ready {
		require.NoError(t, state.MarkReady(a.Services))
	}

	router := NewRouter(RouterConfig{
		State:         state,
		MaxUploadSize: opts.maxUpload,
		Metrics:       m,
		CORSOrigins:   []string{"*"},
		Logger:        zerolog.Nop(),
	})

	return &testServer{state: state, app: a, handler: router.Handler()}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type uploadFile struct {
	name string
	data []byte
}

func uploadRequest(t *testing.T, file *uploadFile, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", file.name)
		require.NoError(t, err)
		_, err = fw.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/pdfs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestDocumentLifecycle(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(uploadRequest(t, &uploadFile{name: "a.pdf", data: []byte{0x25}}, map[string]string{
		"title":    "A",
		"category": "B",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	doc := decode[domain.Document](t, rec)
	require.NotEqual(t, uuid.Nil, doc.ID)
	require.Equal(t, "A", doc.Title)
	require.Equal(t, "Unknown", doc.Author)
	require.Equal(t, float64(0), doc.Price)
	require.False(t, doc.Locked)
	require.Equal(t, "a.pdf", doc.Filename)
	require.Equal(t, int64(1), doc.Size)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.Document](t, rec)
	require.NotEmpty(t, list)
	require.Equal(t, doc.ID, list[0].ID)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs/"+doc.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, doc.ID, decode[domain.Document](t, rec).ID)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs/file/"+doc.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, "1", rec.Header().Get("Content-Length"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "a.pdf")
	require.Equal(t, []byte{0x25}, rec.Body.Bytes())

	rec = srv.do(httptest.NewRequest(http.MethodDelete, "/api/pdfs/"+doc.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decode[MessageResponse](t, rec).Message)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]domain.Document](t, rec))

	_, err := srv.app.Store.Repos.Blob.GetByID(context.Background(), doc.FileID)
	require.ErrorIs(t, err, domain.ErrBlobNotFound)
}

func TestUpload_MultiChunkWithFieldsAfterFile(t *testing.T) {
	srv := newTestServer(t, true)
	data := bytes.Repeat([]byte("0123456789"), 10)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "long.pdf")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("title", "Long"))
	require.NoError(t, mw.WriteField("category", "misc"))
	require.NoError(t, mw.WriteField("price", "9.99"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/pdfs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := srv.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[domain.Document](t, rec)
	require.True(t, doc.Locked)
	require.Equal(t, 9.99, doc.Price)

	blob, err := srv.app.Store.Repos.Blob.GetByID(context.Background(), doc.FileID)
	require.NoError(t, err)
	require.Equal(t, 13, blob.ChunkCount)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs/file/"+doc.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, data, rec.Body.Bytes())
}

func TestUpload_NoFile(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(uploadRequest(t, nil, map[string]string{"title": "A", "category": "B"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No file uploaded", decode[ErrorResponse](t, rec).Error)
}

func TestUpload_NotMultipart(t *testing.T) {
	srv := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/pdfs", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")

	rec := srv.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_ValidationRemovesBlob(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(uploadRequest(t, &uploadFile{name: "a.pdf", data: []byte("%PDF")}, map[string]string{
		"category": "B",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[ErrorResponse](t, rec).Error, "title")

	orphans, err := srv.app.Store.Repos.Blob.ListUnreferenced(context.Background(), -time.Hour, 10)
	require.NoError(t, err)
	require.Empty(t, orphans)
}

func TestUpload_PriceOutOfRange(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(uploadRequest(t, &uploadFile{name: "a.pdf", data: []byte("%PDF")}, map[string]string{
		"title":    "A",
		"category": "B",
		"price":    "1e400",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[ErrorResponse](t, rec).Error, "price")

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]domain.Document](t, rec))
}

func TestUpload_TooLarge(t *testing.T) {
	srv := newTestServer(t, true)

	t.Run("content length", func(t *testing.T) {
		req := uploadRequest(t, &uploadFile{name: "a.pdf", data: []byte("x")}, map[string]string{
			"title": "A", "category": "B",
		})
		req.ContentLength = testMaxUpload + multipartOverhead + 1

		rec := srv.do(req)
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("file part", func(t *testing.T) {
		rec := srv.do(uploadRequest(t, &uploadFile{name: "a.pdf", data: make([]byte, testMaxUpload+1)}, map[string]string{
			"title": "A", "category": "B",
		}))
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

		rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs", nil))
		require.Empty(t, decode[[]domain.Document](t, rec))
	})
}

func TestFile_MalformedID(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs/file/not-a-uuid", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	require.NotEmpty(t, resp.Error)
	require.NotEmpty(t, resp.Details)
}

func TestFile_NotFound(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs/file/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFile_ByBlobID(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(uploadRequest(t, &uploadFile{name: "a.pdf", data: []byte("%PDF-1.4")}, map[string]string{
		"title": "A", "category": "B",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decode[domain.Document](t, rec)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs/file/"+doc.FileID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "%PDF-1.4", rec.Body.String())
}

func TestDelete_NotFound(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(httptest.NewRequest(http.MethodDelete, "/api/pdfs/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "PDF not found", decode[ErrorResponse](t, rec).Error)
}

func TestNotReady(t *testing.T) {
	srv := newTestServer(t, false)

	requests := []*http.Request{
		uploadRequest(t, &uploadFile{name: "a.pdf", data: []byte("x")}, map[string]string{"title": "A", "category": "B"}),
		httptest.NewRequest(http.MethodGet, "/api/pdfs", nil),
		httptest.NewRequest(http.MethodGet, "/api/pdfs/file/"+uuid.NewString(), nil),
		httptest.NewRequest(http.MethodDelete, "/api/pdfs/"+uuid.NewString(), nil),
		httptest.NewRequest(http.MethodGet, "/ready", nil),
	}
	for _, req := range requests {
		rec := srv.do(req)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, "%s %s", req.Method, req.URL.Path)
	}

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, srv.state.MarkReady(srv.app.Services))
	rec = srv.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ready", decode[HealthResponse](t, rec).Status)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/api/pdfs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := srv.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "boom", resp.Details)
}

func TestRecoverer_AbortHandlerPropagates(t *testing.T) {
	h := Recoverer(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	require.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNoFile, http.StatusBadRequest},
		{domain.ErrTitleRequired, http.StatusBadRequest},
		{domain.ErrDocumentNotFound, http.StatusNotFound},
		{domain.ErrBlobNotFound, http.StatusNotFound},
		{domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("read: %w", &http.MaxBytesError{Limit: 1}), http.StatusRequestEntityTooLarge},
		{domain.NewDomainError(domain.ErrMalformedID, "bad", "x"), http.StatusInternalServerError},
		{domain.ErrBlobCorrupted, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestFile_StreamFailureAborts(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(uploadRequest(t, &uploadFile{name: "a.pdf", data: bytes.Repeat([]byte("z"), 40)}, map[string]string{
		"title": "A", "category": "B",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decode[domain.Document](t, rec)

	// Drop the tail chunks so the reader fails after the first chunk.
	chunks := srv.app.Store.Repos.Chunk
	first, err := chunks.GetChunk(context.Background(), doc.FileID, 0)
	require.NoError(t, err)
	require.NoError(t, chunks.DeleteChunks(context.Background(), doc.FileID))
	require.NoError(t, chunks.PutChunk(context.Background(), &domain.Chunk{BlobID: doc.FileID, Seq: 0, Size: 8, Data: first}))

	require.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		srv.do(httptest.NewRequest(http.MethodGet, "/api/pdfs/file/"+doc.ID.String(), nil))
	})
}

func TestFile_CorruptedBlobIsTruncatedOnTheWire(t *testing.T) {
	const chunkSize = 64 << 10
	srv := newTestServerWith(t, true, serverOptions{chunkSize: chunkSize, maxUpload: 1 << 20})

	data := bytes.Repeat([]byte("%PDF-1.7 "), 3*chunkSize/9+1)[:3*chunkSize]
	rec := srv.do(uploadRequest(t, &uploadFile{name: "big.pdf", data: data}, map[string]string{
		"title": "Big", "category": "B",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[domain.Document](t, rec)

	// Flip one payload byte of the middle chunk, keeping its length.
	ctx := context.Background()
	chunks := srv.app.Store.Repos.Chunk
	frame, err := chunks.GetChunk(ctx, doc.FileID, 1)
	require.NoError(t, err)
	frame[len(frame)/2] ^= 0xff
	require.NoError(t, chunks.PutChunk(ctx, &domain.Chunk{BlobID: doc.FileID, Seq: 1, Size: chunkSize, Data: frame}))

	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/pdfs/file/" + doc.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(len(data)), resp.ContentLength)

	got, err := io.ReadAll(resp.Body)
	require.Error(t, err)
	require.Less(t, len(got), len(data))
}
