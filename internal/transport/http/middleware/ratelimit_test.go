package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bridgezone/market-api/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newLimitedEngine(rps rate.Limit, burst int) *gin.Engine {
	r := gin.New()
	r.POST("/auth/signin", middleware.RateLimit(rps, burst), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func hit(r *gin.Engine, remoteAddr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BurstThenRejected(t *testing.T) {
	r := newLimitedEngine(rate.Limit(0.001), 3) // refill slow enough to not matter

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1:1234"), "request %d within burst", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.0.1:1234"), "burst exhausted")
}

func TestRateLimit_SeparateBucketsPerIP(t *testing.T) {
	r := newLimitedEngine(rate.Limit(0.001), 1)

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.0.1:1234"))

	// A different client is unaffected.
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.2:1234"))
}
