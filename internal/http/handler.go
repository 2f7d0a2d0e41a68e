package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"platewatch/internal/domain/lpr"
	"platewatch/internal/service"
)

type Handler struct {
	pipeline *service.Pipeline
	alerts   *service.AlertService
	stolen   *service.StolenService
	queries  *service.QueryService
	log      zerolog.Logger
}

func NewHandler(
	pipeline *service.Pipeline,
	alerts *service.AlertService,
	stolen *service.StolenService,
	queries *service.QueryService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		pipeline: pipeline,
		alerts:   alerts,
		stolen:   stolen,
		queries:  queries,
		log:      log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Camera-facing ingestion and read-only queries
	public := r.Group("/api/v1")
	{
		public.POST("/detections", h.ingestDetection)
		public.GET("/detections", h.listDetections)
		public.GET("/vehicles", h.getVehicle)
		public.GET("/alerts", h.listAlerts)
		public.GET("/alerts/:id", h.getAlert)
	}

	// Operator actions require an authenticated user
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/alerts/:id/acknowledge", h.acknowledgeAlert)
		protected.POST("/alerts/:id/resolve", h.resolveAlert)
		protected.POST("/alerts/:id/dismiss", h.dismissAlert)
		protected.POST("/detections/:id/retry-alert", h.retryAlert)
		protected.POST("/stolen-reports", h.createStolenReport)
		protected.POST("/stolen-reports/:number/recover", h.recoverStolenReport)
	}
}

func (h *Handler) ingestDetection(c *gin.Context) {
	var raw lpr.RawDetection
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if raw.DetectedAt.IsZero() {
		raw.DetectedAt = time.Now()
	}

	result, err := h.pipeline.ProcessRawDetection(c.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, service.ErrAlertPersistence) {
			// the detection is committed; the caller retries the alert step
			// via /detections/:id/retry-alert, not by re-posting the frame
			h.log.Error().Err(err).Msg("alert persistence failed after detection commit")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":        "alert persistence failed",
				"detection_id": result.DetectionID,
				"retryable":    true,
			})
			return
		}
		h.handleError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == lpr.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, successResponse(result))
}

func (h *Handler) retryAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid detection id"))
		return
	}
	alert, err := h.pipeline.RetryAlertCorrelation(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(alert))
}

func (h *Handler) listDetections(c *gin.Context) {
	var plateQuery *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}
	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}
	var cameraID *int64
	if cam := c.Query("camera_id"); cam != "" {
		parsed, err := strconv.ParseInt(cam, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid camera_id"))
			return
		}
		cameraID = &parsed
	}
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	detections, err := h.queries.FindDetections(c.Request.Context(), plateQuery, from, to, cameraID, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(detections))
}

func (h *Handler) getVehicle(c *gin.Context) {
	plate := strings.TrimSpace(c.Query("plate"))
	if plate == "" {
		c.JSON(http.StatusBadRequest, errorResponse("plate parameter is required"))
		return
	}
	vehicle, err := h.queries.FindVehicle(c.Request.Context(), plate)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(vehicle))
}

func (h *Handler) listAlerts(c *gin.Context) {
	var f service.AlertFilter
	if s := c.Query("status"); s != "" {
		status := lpr.AlertStatus(s)
		f.Status = &status
	}
	if t := c.Query("type"); t != "" {
		alertType := lpr.AlertType(t)
		if !alertType.Valid() {
			c.JSON(http.StatusBadRequest, errorResponse("invalid alert type"))
			return
		}
		f.Type = &alertType
	}
	f.Limit = queryInt(c, "limit", 50)
	f.Offset = queryInt(c, "offset", 0)

	alerts, err := h.alerts.List(c.Request.Context(), f)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(alerts))
}

func (h *Handler) getAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid alert id"))
		return
	}
	alert, err := h.alerts.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(alert))
}

func (h *Handler) acknowledgeAlert(c *gin.Context) {
	h.transitionAlert(c, h.alerts.Acknowledge)
}

func (h *Handler) resolveAlert(c *gin.Context) {
	h.transitionAlert(c, h.alerts.Resolve)
}

func (h *Handler) dismissAlert(c *gin.Context) {
	h.transitionAlert(c, h.alerts.Dismiss)
}

func (h *Handler) transitionAlert(c *gin.Context, fn func(ctx context.Context, alertID, userID int64) (*lpr.Alert, error)) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid alert id"))
		return
	}
	alert, err := fn(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(alert))
}

func (h *Handler) createStolenReport(c *gin.Context) {
	var in service.StolenReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	report, err := h.stolen.ReportStolen(c.Request.Context(), in, currentUserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(report))
}

func (h *Handler) recoverStolenReport(c *gin.Context) {
	var in service.RecoveryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	report, err := h.stolen.MarkRecovered(c.Request.Context(), c.Param("number"), in, currentUserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(report))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func queryInt(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
