package httptransport

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"file-conversion-service/internal/converter"
	"file-conversion-service/internal/entity"
	"file-conversion-service/internal/format"
	"file-conversion-service/internal/service"
	"file-conversion-service/internal/store"
	"file-conversion-service/internal/worker"
)

const maxUploadMemory = 32 << 20

type Handler struct {
	conv      *service.ConversionService
	batches   *service.BatchService
	downloads *service.Downloads
}

func NewHandler(conv *service.ConversionService, batches *service.BatchService, downloads *service.Downloads) *Handler {
	return &Handler{conv: conv, batches: batches, downloads: downloads}
}

type categoryFormats struct {
	Category string   `json:"category"`
	Formats  []string `json:"formats"`
}

type formatsResp struct {
	Categories []categoryFormats `json:"categories"`
}

// GetFormats godoc
// @Summary List known formats grouped by category
// @Tags formats
// @Produce json
// @Success 200 {object} formatsResp
// @Router /formats [get]
func (h *Handler) GetFormats(w http.ResponseWriter, r *http.Request) {
	table := format.ListFormats()
	resp := formatsResp{}
	for _, cat := range format.Categories {
		resp.Categories = append(resp.Categories, categoryFormats{
			Category: string(cat),
			Formats:  table[cat],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type checkResp struct {
	Supported bool `json:"supported"`
}

// CheckSupport godoc
// @Summary Check whether a conversion pair is supported
// @Tags formats
// @Produce json
// @Param sourceFormat path string true "source format token"
// @Param targetFormat path string true "target format token"
// @Success 200 {object} checkResp
// @Router /check/{sourceFormat}/{targetFormat} [get]
func (h *Handler) CheckSupport(w http.ResponseWriter, r *http.Request) {
	src := chi.URLParam(r, "sourceFormat")
	dst := chi.URLParam(r, "targetFormat")
	writeJSON(w, http.StatusOK, checkResp{Supported: format.IsSupported(src, dst)})
}

type createJobResp struct {
	JobID  string           `json:"jobId"`
	Status entity.JobStatus `json:"status"`
}

// CreateConversion godoc
// @Summary Submit a file for conversion
// @Description Accepts a multipart upload, registers a pending job and
// @Description returns immediately; conversion runs in the background.
// @Tags jobs
// @Accept mpfd
// @Produce json
// @Param file formData file true "file to convert"
// @Param targetFormat formData string true "target format token"
// @Param quality formData int false "encoder quality (images)"
// @Success 202 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /convert [post]
func (h *Handler) CreateConversion(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	job, err := h.conv.Submit(r.Context(), service.SubmitRequest{
		Filename:     header.Filename,
		TargetFormat: r.FormValue("targetFormat"),
		File:         file,
		Options:      parseOptions(r),
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createJobResp{JobID: job.ID.String(), Status: job.Status})
}

type statusResp struct {
	ID                string           `json:"id"`
	Status            entity.JobStatus `json:"status"`
	Progress          int              `json:"progress"`
	DownloadReference string           `json:"downloadReference,omitempty"`
	ErrorMessage      *string          `json:"errorMessage,omitempty"`
	ProcessingTimeMs  int64            `json:"processingTimeMs,omitempty"`
}

// GetStatus godoc
// @Summary Poll job status
// @Tags jobs
// @Produce json
// @Param jobID path string true "job id (uuid)"
// @Success 200 {object} statusResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /status/{jobID} [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "jobID")
	if !ok {
		return
	}

	job, err := h.conv.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "status lookup failed")
		return
	}

	resp := statusResp{
		ID:               job.ID.String(),
		Status:           job.Status,
		Progress:         job.Progress(),
		ErrorMessage:     job.ErrorMessage,
		ProcessingTimeMs: job.ProcessingTimeMs(),
	}
	if job.Status == entity.StatusCompleted {
		resp.DownloadReference = "/download/" + job.ID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Download godoc
// @Summary Download a finished artifact
// @Tags jobs
// @Produce octet-stream
// @Param jobID path string true "job id (uuid)"
// @Success 200 {file} binary
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /download/{jobID} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "jobID")
	if !ok {
		return
	}

	path, name, err := h.downloads.ResolveDownload(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeErr(w, http.StatusNotFound, "job not found")
		case errors.Is(err, service.ErrNotReady):
			writeErr(w, http.StatusConflict, err.Error())
		default:
			writeErr(w, http.StatusNotFound, "artifact not available")
		}
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeErr(w, http.StatusNotFound, "artifact not available")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, f); err == nil {
		h.downloads.MarkDownloaded(id, path)
	}
}

type batchResp struct {
	BatchID  string                 `json:"batchId"`
	JobIDs   []string               `json:"jobIds"`
	Rejected []service.RejectedItem `json:"rejected,omitempty"`
}

// CreateBatch godoc
// @Summary Submit multiple files as one batch
// @Tags batches
// @Accept mpfd
// @Produce json
// @Param files formData file true "files to convert"
// @Param targetFormat formData string true "target format token"
// @Success 202 {object} batchResp
// @Failure 400 {object} apiError
// @Router /batch-convert [post]
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		writeErr(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	target := r.FormValue("targetFormat")
	opts := parseOptions(r)

	items := make([]service.SubmitRequest, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			writeErr(w, http.StatusBadRequest, "unreadable file part")
			return
		}
		opened = append(opened, f)
		items = append(items, service.SubmitRequest{
			Filename:     hdr.Filename,
			TargetFormat: target,
			File:         f,
			Options:      opts,
		})
	}

	batch, rejectedItems, err := h.batches.SubmitBatch(r.Context(), items)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	resp := batchResp{BatchID: batch.ID.String(), Rejected: rejectedItems}
	for _, id := range batch.MemberJobIDs {
		resp.JobIDs = append(resp.JobIDs, id.String())
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// BatchStatus godoc
// @Summary Aggregate status of a batch
// @Tags batches
// @Produce json
// @Param batchID path string true "batch id (uuid)"
// @Success 200 {object} service.BatchStatus
// @Failure 404 {object} apiError
// @Router /batch-status/{batchID} [get]
func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "batchID")
	if !ok {
		return
	}

	status, err := h.batches.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "batch not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "batch status failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// DownloadBatch godoc
// @Summary Download all completed batch artifacts as a zip
// @Tags batches
// @Produce octet-stream
// @Param batchID path string true "batch id (uuid)"
// @Success 200 {file} binary
// @Failure 404 {object} apiError
// @Router /download-batch/{batchID} [get]
func (h *Handler) DownloadBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "batchID")
	if !ok {
		return
	}

	// resolve the batch first so a missing id is a clean 404 instead of a
	// broken stream
	if _, err := h.batches.Status(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "batch not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "batch lookup failed")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-`+id.String()+`.zip"`)
	if err := h.batches.WriteArchive(r.Context(), id, w); err != nil {
		// headers are already out; nothing left to do but log via middleware
		return
	}
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, converter.ErrUnsupportedConversion):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, worker.ErrQueueFull):
		writeErr(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "submission failed")
	}
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeErr(w, http.StatusNotFound, "unknown id")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptions(r *http.Request) entity.ConvertOptions {
	return entity.ConvertOptions{
		Quality: formInt(r, "quality"),
		Width:   formInt(r, "width"),
		Height:  formInt(r, "height"),
	}
}

func formInt(r *http.Request, key string) int {
	v := r.FormValue(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
