package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/doc-approval/internal/application/permission"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// GrantRequest is the body of POST /api/documents/:id/grants
type GrantRequest struct {
	UserID         string     `json:"user_id" binding:"required"`
	PermissionType string     `json:"permission_type" binding:"required"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// CheckResponse is the result of a permission check
type CheckResponse struct {
	DocumentID     string `json:"document_id"`
	UserID         string `json:"user_id"`
	PermissionType string `json:"permission_type"`
	Allowed        bool   `json:"allowed"`
}

// CheckPermission handles GET /api/documents/:id/permissions/check?type=
func (h *Handlers) CheckPermission(c *gin.Context) {
	t, valid := permissionParam(c, c.Query("type"))
	if !valid {
		return
	}

	docID := c.Param("id")
	allowed, err := h.svc.Permissions.CheckPermission(c.Request.Context(), docID, actor(c), t)
	if err != nil {
		h.fail(c, err)
		return
	}

	ok(c, CheckResponse{
		DocumentID:     docID,
		UserID:         actor(c),
		PermissionType: string(t),
		Allowed:        allowed,
	})
}

// Grant handles POST /api/documents/:id/grants
func (h *Handlers) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	t, valid := permissionParam(c, req.PermissionType)
	if !valid {
		return
	}

	grant, err := h.svc.Permissions.Grant(c.Request.Context(), permission.GrantRequest{
		DocumentID: c.Param("id"),
		GranterID:  actor(c),
		TargetID:   req.UserID,
		Type:       t,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	created(c, grant)
}

// ListGrants handles GET /api/documents/:id/grants
func (h *Handlers) ListGrants(c *gin.Context) {
	grants, err := h.svc.Permissions.ListGrants(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, grants)
}

// ExportGrants handles GET /api/documents/:id/grants.xlsx
func (h *Handlers) ExportGrants(c *gin.Context) {
	docID := c.Param("id")
	grants, err := h.svc.Permissions.ListGrants(c.Request.Context(), docID, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	writeWorkbook(c, fmt.Sprintf("grants-%s.xlsx", docID), func(w http.ResponseWriter) error {
		return h.svc.Reports.Grants(w, docID, grants)
	})
}

// Revoke handles DELETE /api/documents/:id/grants/:user/:type
func (h *Handlers) Revoke(c *gin.Context) {
	t, valid := permissionParam(c, c.Param("type"))
	if !valid {
		return
	}

	removed, err := h.svc.Permissions.Revoke(c.Request.Context(), c.Param("id"), actor(c), c.Param("user"), t)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"removed": removed})
}

// RevokeAll handles DELETE /api/documents/:id/grants/:user
func (h *Handlers) RevokeAll(c *gin.Context) {
	n, err := h.svc.Permissions.RevokeAll(c.Request.Context(), c.Param("id"), actor(c), c.Param("user"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"removed": n})
}

// SharedWithMe handles GET /api/me/shared
func (h *Handlers) SharedWithMe(c *gin.Context) {
	grants, err := h.svc.Permissions.SharedWith(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, grants)
}

// ListAudit handles GET /api/documents/:id/audit?limit=
func (h *Handlers) ListAudit(c *gin.Context) {
	docID := c.Param("id")
	allowed, err := h.svc.Permissions.CheckPermission(c.Request.Context(), docID, actor(c), entity.PermissionView)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !allowed {
		h.fail(c, entity.ErrPermissionDenied)
		return
	}

	var q struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid limit")
		return
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}

	records, err := h.svc.Audit.ListByDocument(c.Request.Context(), docID, q.Limit)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: list audit: %v", entity.ErrStorage, err))
		return
	}
	ok(c, records)
}

func writeWorkbook(c *gin.Context, filename string, write func(w http.ResponseWriter) error) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)
	if err := write(c.Writer); err != nil {
		// headers are already out; abort the connection state
		_ = c.Error(err)
		c.Abort()
	}
}
