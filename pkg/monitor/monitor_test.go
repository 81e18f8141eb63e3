package monitor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveApprovalWait(t *testing.T) {
	ObserveApprovalWait("connect", "approved", time.Now().Add(-2*time.Second))
	ObserveApprovalWait("unlock", "approved", time.Time{})

	assert.Equal(t, 1, testutil.CollectAndCount(ApprovalWaitSeconds))
}

func TestPrometheusMiddlewareSkipsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(PrometheusMiddleware())
	r.GET("/api/v1/approvals/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/v1/approvals/a", "/api/v1/approvals/b", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/approvals/:id", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(HTTPRequestsTotal))
}
