package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Recovery(logger), GinMiddleware(logger))
	return router
}

func findRequestLog(t *testing.T, recorded *observer.ObservedLogs) observer.LoggedEntry {
	t.Helper()
	entries := recorded.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	return entries[0]
}

func TestGinMiddleware_AssignsRequestID(t *testing.T) {
	logger, recorded := observed(zapcore.InfoLevel)
	router := newTestRouter(logger)

	var seen string
	router.GET("/summary", func(c *gin.Context) {
		seen = GetRequestID(c.Request.Context())
		GetGinLogger(c).Info("handler")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/summary?customer=1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	handlerLog := recorded.FilterMessage("handler").All()
	require.Len(t, handlerLog, 1)
	assert.Equal(t, seen, handlerLog[0].ContextMap()["request_id"])

	entry := findRequestLog(t, recorded)
	fields := entry.ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/summary", fields["path"])
	assert.Equal(t, "customer=1", fields["query"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestGinMiddleware_PropagatesIncomingRequestID(t *testing.T) {
	logger, recorded := observed(zapcore.InfoLevel)
	router := newTestRouter(logger)
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "upstream-42", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "upstream-42", findRequestLog(t, recorded).ContextMap()["request_id"])
}

func TestGinMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  zapcore.Level
	}{
		{"client error", "/bad", http.StatusBadRequest, zapcore.WarnLevel},
		{"server error", "/boom", http.StatusServiceUnavailable, zapcore.ErrorLevel},
		{"probe success", "/health", http.StatusOK, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, recorded := observed(zapcore.DebugLevel)
			router := newTestRouter(logger)
			router.GET(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.level, findRequestLog(t, recorded).Level)
		})
	}
}

func TestRecovery(t *testing.T) {
	logger, recorded := observed(zapcore.InfoLevel)
	router := newTestRouter(logger)
	router.GET("/panic", func(c *gin.Context) { panic("ledger exploded") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	panics := recorded.FilterMessage("Panic recovered").All()
	require.Len(t, panics, 1)
	assert.Equal(t, "ledger exploded", panics[0].ContextMap()["error"])
}

func TestGetGinLogger_NotSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}
