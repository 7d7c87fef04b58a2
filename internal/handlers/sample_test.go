package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kurasuta/kurasuta-backend/internal/apierr"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/services"
	"github.com/kurasuta/kurasuta-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeIngestService struct {
	status     string
	submitErr  error
	aggregates map[string]*types.SampleAggregate
	gotHash    string
	gotSub     *types.Submission
}

func (f *fakeIngestService) Submit(ctx context.Context, urlHash string, sub *types.Submission) (string, error) {
	f.gotHash = urlHash
	f.gotSub = sub
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.status, nil
}

func (f *fakeIngestService) ByHash(ctx context.Context, hashType, hash string) (*types.SampleAggregate, error) {
	return f.aggregates[hashType+":"+hash], nil
}

func newSampleRouter(svc services.IngestService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewSampleHandler(testLogger(), svc)
	router.POST("/sha256/:hash", handler.Submit)
	router.GET("/sha256/:hash", handler.Get("sha256"))
	router.GET("/md5/:hash", handler.Get("md5"))
	return router
}

func TestSubmitReturnsStatus(t *testing.T) {
	svc := &fakeIngestService{status: services.StatusOK}
	router := newSampleRouter(svc)
	hash := strings.Repeat("ab", 32)

	body := strings.NewReader(`{"hash_sha256": "` + hash + `", "task_id": 3}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sha256/"+hash, body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
	assert.Equal(t, hash, svc.gotHash)
	require.NotNil(t, svc.gotSub.TaskID)
	assert.Equal(t, int64(3), *svc.gotSub.TaskID)
}

func TestSubmitExistingSample(t *testing.T) {
	svc := &fakeIngestService{status: services.StatusExists}
	router := newSampleRouter(svc)
	hash := strings.Repeat("ab", 32)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sha256/"+hash, strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "EXISTS"}`, w.Body.String())
}

func TestSubmitMalformedBody(t *testing.T) {
	router := newSampleRouter(&fakeIngestService{})
	hash := strings.Repeat("ab", 32)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sha256/"+hash, strings.NewReader(`{not json`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message": "unable to parse JSON body"}`, w.Body.String())
}

func TestSubmitClientErrorKeepsMessage(t *testing.T) {
	svc := &fakeIngestService{submitErr: apierr.InvalidUsage("sample does not exist")}
	router := newSampleRouter(svc)
	hash := strings.Repeat("ab", 32)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sha256/"+hash, strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message": "sample does not exist"}`, w.Body.String())
}

func TestSubmitInternalErrorIsOpaque(t *testing.T) {
	svc := &fakeIngestService{submitErr: context.DeadlineExceeded}
	router := newSampleRouter(svc)
	hash := strings.Repeat("ab", 32)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sha256/"+hash, strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message": "internal error"}`, w.Body.String())
}

func TestGetSample(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	id := int64(5)
	svc := &fakeIngestService{
		aggregates: map[string]*types.SampleAggregate{
			"sha256:" + hash: {ID: &id, HashSHA256: &hash},
		},
	}
	router := newSampleRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sha256/"+hash, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": 5, "hash_sha256": "`+hash+`"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/md5/"+strings.Repeat("cd", 16), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message": "sample not found"}`, w.Body.String())
}
