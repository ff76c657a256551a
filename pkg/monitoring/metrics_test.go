package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGinMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMetrics("test-svc"))
	r.GET("/subjects/:subject/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/subjects/1/stats", "/subjects/2/stats", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(RequestsTotal.WithLabelValues("test-svc", "GET", "/subjects/:subject/stats", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RequestsTotal.WithLabelValues("test-svc", "GET", "unmatched", "404")))
}

func TestGinMetrics_InFlight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMetrics("inflight-svc"))
	r.GET("/probe", func(c *gin.Context) {
		assert.Equal(t, 1.0, testutil.ToFloat64(RequestsInFlight.WithLabelValues("inflight-svc")))
		c.Status(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, 0.0, testutil.ToFloat64(RequestsInFlight.WithLabelValues("inflight-svc")))
}
