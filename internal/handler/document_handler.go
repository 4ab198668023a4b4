package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/service"
)

const (
	// multipartOverhead is the allowance for boundaries, part headers and
	// form fields on top of the file itself.
	multipartOverhead = 1 << 20

	// maxFieldSize caps a single form field value.
	maxFieldSize = 64 << 10

	fileField = "file"
)

// DocumentHandler handles the document API.
type DocumentHandler struct {
	state         *service.State
	maxUploadSize int64
	logger        zerolog.Logger
}

// DocumentHandlerConfig contains configuration for the document handler.
type DocumentHandlerConfig struct {
	State *service.State

	// MaxUploadSize caps the file part in bytes. Zero disables the request
	// size check; the chunk store still enforces its own limit.
	MaxUploadSize int64

	Logger zerolog.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(cfg DocumentHandlerConfig) *DocumentHandler {
	return &DocumentHandler{
		state:         cfg.State,
		maxUploadSize: cfg.MaxUploadSize,
		logger:        cfg.Logger.With().Str("handler", "document").Logger(),
	}
}

// RegisterRoutes registers document routes.
func (h *DocumentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/pdfs", func(r chi.Router) {
		r.Post("/", h.handleUpload)
		r.Get("/", h.handleList)
		r.Get("/file/{id}", h.handleFile)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleDelete)
	})
}

// handleUpload streams a multipart upload into the chunk store and
// registers the document.
func (h *DocumentHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	services, err := h.state.Services()
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to upload PDF")
		return
	}

	if h.maxUploadSize > 0 {
		limit := h.maxUploadSize + multipartOverhead
		if r.ContentLength > limit {
			writeServiceError(w, h.logger, domain.ErrPayloadTooLarge, "Failed to upload PDF")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "No file uploaded", Details: err.Error()})
		return
	}

	ctx := r.Context()
	upload, err := services.Uploads.Begin(ctx)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to upload PDF")
		return
	}

	var fields domain.DocumentFields
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			upload.Abort(ctx, err)
			writeServiceError(w, h.logger, wrapRequestError(err), "Failed to upload PDF")
			return
		}

		if err := h.consumePart(ctx, upload, part, &fields); err != nil {
			part.Close()
			upload.Abort(ctx, err)
			writeServiceError(w, h.logger, err, "Failed to upload PDF")
			return
		}
		part.Close()
	}

	doc, err := upload.Commit(ctx, fields)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to upload PDF")
		return
	}

	h.logger.Info().
		Str("document_id", doc.ID.String()).
		Str("file_id", doc.FileID.String()).
		Int64("size", doc.Size).
		Msg("document uploaded")

	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) consumePart(ctx context.Context, upload *service.Upload, part *multipart.Part, fields *domain.DocumentFields) error {
	name := part.FormName()
	if name != fileField && part.FileName() == "" {
		value, err := readField(part)
		if err != nil {
			return err
		}
		setField(fields, name, value)
		return nil
	}

	// Only the first file part is stored.
	if upload.State() != service.UploadReceiving {
		_, err := io.Copy(io.Discard, part)
		return wrapRequestError(err)
	}

	_, err := upload.Store(ctx, service.FilePart{
		Body:        part,
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
	})
	return err
}

func readField(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFieldSize+1))
	if err != nil {
		return "", wrapRequestError(err)
	}
	if len(data) > maxFieldSize {
		return "", domain.NewDomainError(domain.ErrBadRequest, "form field too large", "")
	}
	return string(data), nil
}

func setField(fields *domain.DocumentFields, name, value string) {
	switch name {
	case "title":
		fields.Title = value
	case "author":
		fields.Author = value
	case "price":
		fields.Price = value
	case "category":
		fields.Category = value
	case "description":
		fields.Description = value
	}
}

// wrapRequestError classifies a failure to read the request body.
func wrapRequestError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return domain.NewDomainError(domain.ErrBadRequest, err.Error(), "")
}

// handleList returns every document, newest first.
func (h *DocumentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	services, err := h.state.Services()
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch PDFs")
		return
	}

	docs, err := services.Documents.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch PDFs")
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

// handleGet returns one document.
func (h *DocumentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	services, err := h.state.Services()
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch PDF")
		return
	}

	doc, err := services.Documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch PDF")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleFile streams the file of a document.
func (h *DocumentHandler) handleFile(w http.ResponseWriter, r *http.Request) {
	services, err := h.state.Services()
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to retrieve PDF")
		return
	}

	out, err := services.Documents.OpenFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to retrieve PDF")
		return
	}
	defer out.Reader.Close()

	header := w.Header()
	header.Set("Content-Type", "application/pdf")
	header.Set("Content-Length", strconv.FormatInt(out.Blob.Length, 10))
	if disposition := contentDisposition(out.Filename()); disposition != "" {
		header.Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, out.Reader); err != nil {
		// Headers are already sent; abort the connection so the client
		// sees a truncated response instead of a complete one.
		h.logger.Error().Err(err).
			Str("blob_id", out.Blob.ID.String()).
			Msg("failed to stream file")
		panic(http.ErrAbortHandler)
	}
}

func contentDisposition(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return ""
	}
	return mime.FormatMediaType("inline", map[string]string{"filename": filename})
}

// handleDelete removes a document and its file.
func (h *DocumentHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	services, err := h.state.Services()
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete PDF")
		return
	}

	id := chi.URLParam(r, "id")
	if err := services.Documents.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete PDF")
		return
	}

	h.logger.Info().Str("document_id", id).Msg("document deleted")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "PDF deleted successfully"})
}
