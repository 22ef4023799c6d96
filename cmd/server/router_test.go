package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aura-webinar/livepoll/internal/middleware"
	"github.com/aura-webinar/livepoll/internal/sessions"
)

func testRouter(t *testing.T) (*gin.Engine, *sessions.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	manager := sessions.NewManager(sessions.NewStore(), nil)
	ws := func(c *gin.Context) { c.Status(http.StatusTeapot) }
	return newRouter(zap.NewNop(), middleware.NewOriginPolicy("*"), manager, ws), manager
}

func TestRouter_Liveness(t *testing.T) {
	router, _ := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Live Poll server is running")
}

func TestRouter_Health(t *testing.T) {
	router, manager := testRouter(t)
	_, err := manager.Create("Quiz")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"status":"ok","sessions":1}}`, w.Body.String())
}

func TestRouter_WebSocketRouteAndNoREST(t *testing.T) {
	router, _ := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/ABCDEF", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"not found"}`, w.Body.String())
}

func TestNewLogger_Level(t *testing.T) {
	logger := newLogger("debug")
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger = newLogger("nonsense")
	assert.False(t, logger.Core().Enabled(zap.DebugLevel), "bad level keeps the production default")
}
