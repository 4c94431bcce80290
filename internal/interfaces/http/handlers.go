package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/pkg/ids"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	svc    Services
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		svc:    services,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.svc.Health != nil {
		ok, details := h.svc.Health()
		resp.Components = details
		if !ok {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// statusFor maps an engine error to its HTTP status
func statusFor(err error) int {
	switch entity.KindOf(err) {
	case entity.KindAuthorization:
		return http.StatusForbidden
	case entity.KindValidation:
		return http.StatusBadRequest
	case entity.KindConflict:
		return http.StatusConflict
	case entity.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err. Storage and unknown errors are logged and reported
// without their cause.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	kind := entity.KindOf(err)
	msg := err.Error()

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(ctxRequestID),
			"error", err,
		)
		msg = "internal error"
		kind = entity.KindStorage
	}

	c.JSON(status, Response{Success: false, Error: msg, Kind: kind.String()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Kind: entity.KindValidation.String()})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// instanceParam reads an approval instance id; those are always ULIDs
func instanceParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !ids.Valid(id) {
		badRequest(c, "invalid approval id")
		return "", false
	}
	return id, true
}

func permissionParam(c *gin.Context, raw string) (entity.PermissionType, bool) {
	t, err := entity.ParsePermissionType(raw)
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return t, true
}
