// Package rest serves the upload and download HTTP API.
package rest

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Roshandass172/bot1/internal/anomaly"
	"github.com/Roshandass172/bot1/internal/api/middleware"
	"github.com/Roshandass172/bot1/internal/metrics"
	"github.com/Roshandass172/bot1/internal/report"
	"github.com/Roshandass172/bot1/internal/storage"
)

const (
	fileField       = "file"
	uploadExt       = ".csv"
	fallbackBase    = "upload"
	downloadPrefix  = "/download/"
	multipartMemory = 8 << 20
)

// Pipeline is the detection and rendering setup applied to each upload.
type Pipeline struct {
	Detector *anomaly.Detector
	Renderer *report.Renderer
}

// UploadResponse is the success body of POST /upload.
type UploadResponse struct {
	Anomalies *anomaly.Result `json:"anomalies"`
	PDFURL    string          `json:"pdf_url"`
}

// Handler serves the HTTP API.
type Handler struct {
	store    *storage.Store
	logger   *zap.Logger
	pipeline atomic.Pointer[Pipeline]
}

// NewHandler creates a handler. p must not be nil.
func NewHandler(store *storage.Store, p *Pipeline, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{store: store, logger: logger}
	h.pipeline.Store(p)
	return h
}

// SetPipeline replaces the pipeline used by later uploads. Requests already
// running keep the one they started with.
func (h *Handler) SetPipeline(p *Pipeline) {
	h.pipeline.Store(p)
}

// Upload handles POST /upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	p := h.pipeline.Load()

	resp, err := h.processUpload(r, p)
	if err != nil {
		status, code, msg := classify(err)
		result := metrics.ResultError
		switch {
		case status == http.StatusUnprocessableEntity:
			result = metrics.ResultInvalid
		case status < http.StatusInternalServerError:
			result = metrics.ResultRejected
		}
		metrics.UploadsTotal.WithLabelValues(result).Inc()

		logFn := h.logger.Warn
		if status >= http.StatusInternalServerError {
			logFn = h.logger.Error
		}
		logFn("upload failed", zap.String("request_id", reqID), zap.Int("status", status), zap.Error(err))
		respondError(w, status, code, msg, reqID)
		return
	}

	metrics.UploadsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	h.logger.Info("upload processed",
		zap.String("request_id", reqID),
		zap.Int("rows", resp.Anomalies.TotalRows),
		zap.Int("anomalies", len(resp.Anomalies.Anomalies)),
		zap.String("pdf_url", resp.PDFURL),
	)
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) processUpload(r *http.Request, p *Pipeline) (*UploadResponse, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &ValidationError{Message: MsgNoFilePart}
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(fileField)
	if err != nil {
		// A part sent without a file name is parsed as a plain form value.
		if _, ok := r.MultipartForm.Value[fileField]; ok {
			return nil, &ValidationError{Message: MsgNoSelectedFile}
		}
		return nil, &ValidationError{Message: MsgNoFilePart}
	}
	defer file.Close()

	base, err := uploadBase(header)
	if err != nil {
		return nil, err
	}

	path, err := h.store.SaveUpload(base, file)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := p.Detector.DetectFile(r.Context(), path)
	if err != nil {
		return nil, err
	}
	metrics.DetectionDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.RowsProcessedTotal.Add(float64(res.TotalRows))
	metrics.AnomaliesDetectedTotal.Add(float64(len(res.Anomalies)))

	start = time.Now()
	if err := p.Renderer.RenderFile(h.store.ReportPath(base), res); err != nil {
		return nil, err
	}
	metrics.ReportRenderDurationSeconds.Observe(time.Since(start).Seconds())

	return &UploadResponse{
		Anomalies: res,
		PDFURL:    downloadPrefix + storage.ReportName(base),
	}, nil
}

// uploadBase validates the client file name and returns the sanitised base
// name used for the stored upload and its report.
func uploadBase(header *multipart.FileHeader) (string, error) {
	if header.Filename == "" {
		return "", &ValidationError{Message: MsgNoSelectedFile}
	}
	if _, ext := storage.SplitExt(header.Filename); ext != uploadExt {
		return "", &ValidationError{Message: MsgInvalidFormat}
	}
	base, _ := storage.SplitExt(storage.SanitizeFilename(header.Filename))
	if base == "" {
		base = fallbackBase
	}
	return base, nil
}

// Download handles GET /download/{filename}.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	name := mux.Vars(r)["filename"]

	f, info, err := h.store.OpenReport(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, MsgFileNotFound, reqID)
			return
		}
		h.logger.Error("open report", zap.String("request_id", reqID), zap.String("file", name), zap.Error(err))
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Could not open report", reqID)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
