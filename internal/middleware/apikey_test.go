package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kurasuta/kurasuta-backend/internal/logger"
)

type fakeAPIKeyRepo struct {
	keys map[string]bool
}

func (f *fakeAPIKeyRepo) Exists(ctx context.Context, tx *gorm.DB, key string) (bool, error) {
	return f.keys[key], nil
}

func newProtectedRouter(keys map[string]bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
	mw := NewAPIKeyMiddleware(log, &fakeAPIKeyRepo{keys: keys})
	router := gin.New()
	router.Use(mw.RequireKey())
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return router
}

func TestRequireKey(t *testing.T) {
	known := "b5f6bfbe-0b3d-4ed9-a2a1-3a3f0b3f7c11"
	router := newProtectedRouter(map[string]bool{known: true})

	cases := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing", key: "", want: http.StatusUnauthorized},
		{name: "not_a_uuid", key: "hunter2", want: http.StatusUnauthorized},
		{name: "unknown_uuid", key: "11111111-2222-3333-4444-555555555555", want: http.StatusUnauthorized},
		{name: "known", key: known, want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.key != "" {
				req.Header.Set("X-Api-Key", tc.key)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "caller-chosen")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "caller-chosen", w.Header().Get("X-Request-Id"))
}
