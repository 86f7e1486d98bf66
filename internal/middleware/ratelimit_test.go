package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func limitedRouter(config RateLimiterConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(config))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func doRequest(router *gin.Engine, ip string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", ip)
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitMiddlewarePerIP(t *testing.T) {
	router := limitedRouter(RateLimiterConfig{RequestsPerSecond: 0.01, BurstSize: 2})

	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, "10.0.0.1"))

	// A different client has its own budget.
	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.2"))
}

func TestServiceRateLimitMiddlewareSharedBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ServiceRateLimitMiddleware(0.01, 1))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	// The budget is global, so a second caller from another address is
	// rejected too.
	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, "10.0.0.2"))
}
