package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type logServiceMock struct {
	getResp   *models.ExecutionLog
	getErr    error
	listResp  []models.ExecutionLog
	deleteErr error
	statsResp *models.LogStats
	csv       []byte

	lastFilter models.LogFilter
}

func (m *logServiceMock) Get(ctx context.Context, id string) (*models.ExecutionLog, error) {
	return m.getResp, m.getErr
}

func (m *logServiceMock) List(ctx context.Context, filter models.LogFilter) ([]models.ExecutionLog, error) {
	m.lastFilter = filter
	return m.listResp, nil
}

func (m *logServiceMock) Delete(ctx context.Context, id string) error {
	return m.deleteErr
}

func (m *logServiceMock) Stats(ctx context.Context) (*models.LogStats, error) {
	return m.statsResp, nil
}

func (m *logServiceMock) ExportCSV(ctx context.Context, filter models.LogFilter) ([]byte, error) {
	m.lastFilter = filter
	return m.csv, nil
}

func logTestContext(t *testing.T, method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, bytes.NewReader(nil))
	require.NoError(t, err)
	c.Request = req
	return c, w
}

func TestLogHandlerListMapsFilters(t *testing.T) {
	mock := &logServiceMock{listResp: []models.ExecutionLog{{ID: "l1"}}}
	handler := NewLogHandler(mock)

	c, w := logTestContext(t, http.MethodGet, "/logs?job_id=job-1&status=failed&limit=20")
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.lastFilter.BackupJobID)
	assert.Equal(t, "job-1", *mock.lastFilter.BackupJobID)
	require.NotNil(t, mock.lastFilter.Status)
	assert.Equal(t, models.LogStatusFailed, *mock.lastFilter.Status)
	assert.Equal(t, 20, mock.lastFilter.Limit)
}

func TestLogHandlerListRejectsBadStatus(t *testing.T) {
	handler := NewLogHandler(&logServiceMock{})
	c, w := logTestContext(t, http.MethodGet, "/logs?status=exploded")
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogHandlerGetNotFound(t *testing.T) {
	mock := &logServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "execution log not found")}
	handler := NewLogHandler(mock)

	c, w := logTestContext(t, http.MethodGet, "/logs/missing")
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogHandlerDelete(t *testing.T) {
	handler := NewLogHandler(&logServiceMock{})
	c, w := logTestContext(t, http.MethodDelete, "/logs/l1")
	c.Params = gin.Params{{Key: "id", Value: "l1"}}
	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLogHandlerExportSetsHeaders(t *testing.T) {
	mock := &logServiceMock{csv: []byte("id,status\nl1,completed\n")}
	handler := NewLogHandler(mock)

	c, w := logTestContext(t, http.MethodGet, "/logs/export")
	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "execution_logs_")
	assert.Contains(t, w.Body.String(), "l1,completed")
}
