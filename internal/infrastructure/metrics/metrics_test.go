package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.PermissionChecked("view", true)
	r.PermissionChecked("view", true)
	r.PermissionChecked("edit", false)
	r.DecisionRecorded("approve")
	r.InstanceTransitioned("APPROVED")
	r.VersionConflict()
	r.VersionConflict()
	r.NotificationSent("approval.requested")
	r.SideEffectFailed("notifier")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.permissionChecks.WithLabelValues("view", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.permissionChecks.WithLabelValues("edit", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("APPROVED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.versionConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notificationsSent.WithLabelValues("approval.requested")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sideEffectFailures.WithLabelValues("notifier")))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveHTTP(http.MethodGet, "/api/approvals/:id", http.StatusOK, 15*time.Millisecond)
	r.DecisionRecorded("reject")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `docapproval_workflow_decisions_total{outcome="reject"} 1`))
	assert.True(t, strings.Contains(body, `docapproval_http_requests_total{method="GET",path="/api/approvals/:id",status="200"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
