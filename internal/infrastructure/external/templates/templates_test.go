package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]interface{}
		want     string
	}{
		{
			name:     "approval requested",
			template: entity.TemplateApprovalRequested,
			data:     map[string]interface{}{"document_id": "doc1", "stage_name": "finance", "submitted_by": "alice"},
			want:     `Approval requested: document doc1, stage "finance", submitted by alice.`,
		},
		{
			name:     "rejected with comment",
			template: entity.TemplateApprovalRejected,
			data:     map[string]interface{}{"document_id": "doc1", "decided_by": "bob", "comment": "too expensive"},
			want:     "Document doc1 was rejected by bob. Comment: too expensive",
		},
		{
			name:     "approved without comment",
			template: entity.TemplateApprovalApproved,
			data:     map[string]interface{}{"document_id": "doc1", "decided_by": "bob", "comment": ""},
			want:     "Document doc1 was approved by bob.",
		},
		{
			name:     "shared",
			template: entity.TemplateDocumentShared,
			data:     map[string]interface{}{"document_id": "doc1", "granted_by": "alice", "permission_type": "edit"},
			want:     "alice gave you edit access to document doc1.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := Render("nope", nil)
	assert.Error(t, err)
	assert.False(t, Known("nope"))
	assert.True(t, Known(entity.TemplateDocumentShared))
}
