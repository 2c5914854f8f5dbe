package pipeline

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"contract-backend/internal/shared/server/middleware"
	"contract-backend/internal/shared/server/respond"
)

// Handler exposes the pipeline over HTTP.
type Handler struct {
	Service        *Service
	MaxUploadBytes int64
}

// Register mounts the pipeline routes under /api/v1.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/analyze", h.analyze)
	v1.POST("/review_pipeline", h.reviewPipeline)
	v1.GET("/pipeline_stats", h.stats)
	v1.GET("/runs", h.listRuns)
	v1.GET("/runs/:id", h.getRun)
}

type runResponse struct {
	Run
	Dispatch DispatchStatus `json:"dispatch,omitempty"`
}

func (h *Handler) analyze(c *gin.Context) {
	up, opts, ok := h.readUpload(c)
	if !ok {
		return
	}

	run, err := h.Service.Analyze(c.Request.Context(), up, opts)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.writeRun(c, run, "")
}

func (h *Handler) reviewPipeline(c *gin.Context) {
	up, opts, ok := h.readUpload(c)
	if !ok {
		return
	}
	opts.RequesterEmail = strings.TrimSpace(c.PostForm("requester_email"))
	if opts.RequesterEmail == "" {
		respond.Error(c, http.StatusBadRequest, "missing_requester_email", "requester_email is required", nil)
		return
	}

	run, dispatch, err := h.Service.Review(c.Request.Context(), up, opts)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.writeRun(c, run, dispatch)
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.Service.Stats(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "stats_failed", "could not compute pipeline stats", nil)
		return
	}
	respond.OK(c, stats)
}

func (h *Handler) listRuns(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			respond.Error(c, http.StatusBadRequest, "invalid_limit", "limit must be an integer between 1 and 200", nil)
			return
		}
		limit = parsed
	}

	runs, err := h.Service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "list_failed", "could not list runs", nil)
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	respond.OK(c, gin.H{"runs": runs})
}

func (h *Handler) getRun(c *gin.Context) {
	run, err := h.Service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "run not found", nil)
			return
		}
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "get_failed", "could not load run", nil)
		return
	}
	respond.OK(c, run)
}

// readUpload parses the multipart upload and common options. On failure it has
// already written the error response.
func (h *Handler) readUpload(c *gin.Context) (Upload, Options, bool) {
	opts := DefaultOptions()
	opts.RequestID = middleware.RequestIDFromContext(c)

	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+4096)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "missing_file", "multipart field 'file' is required", nil)
		return Upload{}, opts, false
	}
	defer file.Close()

	if h.MaxUploadBytes > 0 && header.Size > h.MaxUploadBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit", nil)
		return Upload{}, opts, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "read_failed", "could not read uploaded file", nil)
		return Upload{}, opts, false
	}

	if raw := strings.TrimSpace(c.PostForm("strict_mode")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_strict_mode", "strict_mode must be a boolean", nil)
			return Upload{}, opts, false
		}
		opts.StrictMode = parsed
	}
	opts.Jurisdiction = strings.TrimSpace(c.PostForm("jurisdiction"))
	if raw := strings.TrimSpace(c.PostForm("top_k_precedents")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respond.Error(c, http.StatusBadRequest, "invalid_top_k", "top_k_precedents must be a positive integer", nil)
			return Upload{}, opts, false
		}
		opts.TopKPrecedents = parsed
	}

	return Upload{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}, opts, true
}

// writeRun maps a finished run onto the response. Rejected runs are a normal
// 200 outcome; failed runs surface the stored error code.
func (h *Handler) writeRun(c *gin.Context, run Run, dispatch DispatchStatus) {
	c.Set("runId", run.ID)
	c.Set("documentId", run.DocumentID)
	if run.Recommendation != "" {
		c.Set("recommendation", string(run.Recommendation))
	}
	if run.Status == StatusFailed {
		status, code := failureStatus(run.ErrorCode)
		respond.Error(c, status, code, run.ErrorMessage, gin.H{"run_id": run.ID})
		return
	}
	respond.OK(c, runResponse{Run: run, Dispatch: dispatch})
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	if errors.Is(err, ErrInvalidInput) {
		respond.Error(c, http.StatusBadRequest, "invalid_input", err.Error(), nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal", "analysis could not be started", nil)
}

func failureStatus(code string) (int, string) {
	switch code {
	case CodeUnsupportedType:
		return http.StatusUnsupportedMediaType, code
	case CodeExtractFailed:
		return http.StatusUnprocessableEntity, code
	case CodeCanceled, CodeTimeout:
		return http.StatusServiceUnavailable, code
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
