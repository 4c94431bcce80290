package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/doc-approval/internal/application/workflow"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// CreateWorkflowRequest is the body of POST /api/workflows
type CreateWorkflowRequest struct {
	Name        string                `json:"name" binding:"required"`
	Description string                `json:"description"`
	Config      entity.WorkflowConfig `json:"config"`
	Active      *bool                 `json:"active"`
}

// UpdateWorkflowRequest is the body of PUT /api/workflows/:id
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Config      *entity.WorkflowConfig `json:"config"`
	Active      *bool                  `json:"active"`
}

// SubmitRequest is the body of POST /api/documents/:id/submissions
type SubmitRequest struct {
	WorkflowID int64 `json:"workflow_id" binding:"required"`
}

// DecisionRequest is the body of approve and reject
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// CreateWorkflow handles POST /api/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	def, err := h.svc.Definitions.Create(c.Request.Context(), workflow.CreateDefinitionRequest{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   actor(c),
		Config:      req.Config,
		Active:      req.Active,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	created(c, def)
}

// UpdateWorkflow handles PUT /api/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	id, valid := int64Param(c, "id")
	if !valid {
		return
	}

	var req UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	def, err := h.svc.Definitions.Update(c.Request.Context(), id, workflow.UpdateDefinitionRequest{
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
		Active:      req.Active,
		UpdatedBy:   actor(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	ok(c, def)
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, valid := int64Param(c, "id")
	if !valid {
		return
	}

	def, err := h.svc.Definitions.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, def)
}

// ListWorkflows handles GET /api/workflows?active=true
func (h *Handlers) ListWorkflows(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	defs, err := h.svc.Definitions.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, defs)
}

// Submit handles POST /api/documents/:id/submissions
func (h *Handlers) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	inst, err := h.svc.Workflows.Submit(c.Request.Context(), c.Param("id"), req.WorkflowID, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	created(c, inst)
}

// ListDocumentApprovals handles GET /api/documents/:id/approvals
func (h *Handlers) ListDocumentApprovals(c *gin.Context) {
	list, err := h.svc.Workflows.ListForDocument(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, list)
}

// PendingApprovals handles GET /api/approvals/pending
func (h *Handlers) PendingApprovals(c *gin.Context) {
	list, err := h.svc.Workflows.PendingForApprover(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, list)
}

// GetApproval handles GET /api/approvals/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	id, valid := instanceParam(c)
	if !valid {
		return
	}
	inst, err := h.svc.Workflows.GetInstance(c.Request.Context(), id, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, inst)
}

// ExportHistory handles GET /api/approvals/:id/history.xlsx
func (h *Handlers) ExportHistory(c *gin.Context) {
	id, valid := instanceParam(c)
	if !valid {
		return
	}
	inst, err := h.svc.Workflows.GetInstance(c.Request.Context(), id, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	writeWorkbook(c, fmt.Sprintf("approval-%s.xlsx", inst.ID), func(w http.ResponseWriter) error {
		return h.svc.Reports.ApprovalHistory(w, inst)
	})
}

// Approve handles POST /api/approvals/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	id, valid := instanceParam(c)
	if !valid {
		return
	}
	var req DecisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	inst, err := h.svc.Workflows.Approve(c.Request.Context(), id, actor(c), req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, inst)
}

// Reject handles POST /api/approvals/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	id, valid := instanceParam(c)
	if !valid {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	inst, err := h.svc.Workflows.Reject(c.Request.Context(), id, actor(c), req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, inst)
}
