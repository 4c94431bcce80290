// Package templates renders the plain-text bodies of outgoing notifications.
package templates

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

var bodies = map[string]string{
	entity.TemplateApprovalRequested: `Approval requested: document {{.document_id}}` +
		`{{with .stage_name}}, stage "{{.}}"{{end}}` +
		`{{with .submitted_by}}, submitted by {{.}}{{end}}.`,
	entity.TemplateApprovalApproved: `Document {{.document_id}} was approved` +
		`{{with .decided_by}} by {{.}}{{end}}.` +
		`{{with .comment}} Comment: {{.}}{{end}}`,
	entity.TemplateApprovalRejected: `Document {{.document_id}} was rejected` +
		`{{with .decided_by}} by {{.}}{{end}}.` +
		`{{with .comment}} Comment: {{.}}{{end}}`,
	entity.TemplateDocumentShared: `{{.granted_by}} gave you {{.permission_type}} access to document {{.document_id}}` +
		`{{with .expires_at}} until {{.}}{{end}}.`,
}

var parsed = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(bodies))
	for id, body := range bodies {
		out[id] = template.Must(template.New(id).Option("missingkey=zero").Parse(body))
	}
	return out
}()

// Render produces the message text for templateID
func Render(templateID string, data map[string]interface{}) (string, error) {
	tmpl, ok := parsed[templateID]
	if !ok {
		return "", fmt.Errorf("unknown notification template: %s", templateID)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", templateID, err)
	}
	return buf.String(), nil
}

// Known reports whether templateID has a body
func Known(templateID string) bool {
	_, ok := parsed[templateID]
	return ok
}
