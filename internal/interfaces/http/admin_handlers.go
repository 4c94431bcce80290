package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/pkg/utils"
)

// SaveUserRequest is the body of PUT /api/admin/users/:id
type SaveUserRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	LarkOpenID  string `json:"lark_open_id"`
	Active      *bool  `json:"active"`
}

// SaveDocumentRequest is the body of PUT /api/admin/documents/:id
type SaveDocumentRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
	Title   string `json:"title"`
}

// SaveUser handles PUT /api/admin/users/:id
func (h *Handlers) SaveUser(c *gin.Context) {
	id := c.Param("id")
	if !entity.WellFormedUserID(id) {
		badRequest(c, "invalid user id")
		return
	}

	var req SaveUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Email != "" {
		if err := utils.ValidateEmail(req.Email); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	user := &entity.User{
		ID:          id,
		DisplayName: utils.SanitizeString(strings.TrimSpace(req.DisplayName)),
		Email:       req.Email,
		LarkOpenID:  strings.TrimSpace(req.LarkOpenID),
		Active:      req.Active == nil || *req.Active,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.svc.Users.Save(c.Request.Context(), user); err != nil {
		h.fail(c, fmt.Errorf("%w: save user: %v", entity.ErrStorage, err))
		return
	}

	h.logger.Info("User saved", "user_id", id, "active", user.Active, "actor", actor(c))
	ok(c, user)
}

// SaveDocument handles PUT /api/admin/documents/:id
func (h *Handlers) SaveDocument(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		badRequest(c, "invalid document id")
		return
	}

	var req SaveDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if !entity.WellFormedUserID(req.OwnerID) {
		badRequest(c, "invalid owner_id")
		return
	}
	title := utils.SanitizeString(req.Title)
	if title == "" {
		title = id
	}
	if err := utils.ValidateTitle(title); err != nil {
		badRequest(c, err.Error())
		return
	}

	doc := &entity.Document{
		ID:        id,
		OwnerID:   req.OwnerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.svc.Documents.Save(c.Request.Context(), doc); err != nil {
		h.fail(c, fmt.Errorf("%w: save document: %v", entity.ErrStorage, err))
		return
	}

	h.logger.Info("Document saved", "document_id", id, "owner_id", doc.OwnerID, "actor", actor(c))
	ok(c, doc)
}

// GetDocument handles GET /api/admin/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	doc, err := h.svc.Documents.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, fmt.Errorf("%w: get document: %v", entity.ErrStorage, err))
		return
	}
	if doc == nil {
		h.fail(c, entity.ErrDocumentNotFound)
		return
	}
	ok(c, doc)
}

// SweepGrants handles POST /api/admin/grants/sweep
func (h *Handlers) SweepGrants(c *gin.Context) {
	n, err := h.svc.Permissions.SweepExpired(c.Request.Context(), time.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"removed": n})
}
