package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivo-io/arkivo/internal/dto"
	"github.com/arkivo-io/arkivo/internal/models"
	appErrors "github.com/arkivo-io/arkivo/pkg/errors"
)

type catalogServiceMock struct {
	scanResp   *models.ScanJob
	scanErr    error
	searchResp []models.FileEntry
	searchErr  error
	dupResp    []models.DuplicateGroup
	atRiskResp []models.FileEntry
	fileResp   *models.FileEntry
	fileErr    error

	lastFilter models.FileFilter
}

func (m *catalogServiceMock) StartScan(ctx context.Context, rootPath string, scanType models.ScanType, trigger models.TriggerSource) (*models.ScanJob, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	if m.scanResp != nil {
		return m.scanResp, nil
	}
	return &models.ScanJob{ID: "scan-1", RootPath: rootPath, ScanType: scanType, Status: models.ScanStatusPending}, nil
}

func (m *catalogServiceMock) GetScanJob(ctx context.Context, id string) (*models.ScanJob, error) {
	return m.scanResp, m.scanErr
}

func (m *catalogServiceMock) ListScanJobs(ctx context.Context, limit int) ([]models.ScanJob, error) {
	return []models.ScanJob{}, nil
}

func (m *catalogServiceMock) GetFile(ctx context.Context, id string) (*models.FileEntry, error) {
	return m.fileResp, m.fileErr
}

func (m *catalogServiceMock) FileHistory(ctx context.Context, fileID string, limit int) ([]models.FileHistory, error) {
	return []models.FileHistory{}, m.fileErr
}

func (m *catalogServiceMock) Search(ctx context.Context, filter models.FileFilter) ([]models.FileEntry, error) {
	m.lastFilter = filter
	return m.searchResp, m.searchErr
}

func (m *catalogServiceMock) Duplicates(ctx context.Context, limit int) ([]models.DuplicateGroup, error) {
	return m.dupResp, nil
}

func (m *catalogServiceMock) AtRisk(ctx context.Context, limit int) ([]models.FileEntry, error) {
	return m.atRiskResp, nil
}

func (m *catalogServiceMock) Directories(ctx context.Context, root string, limit int) ([]models.DirectoryEntry, error) {
	if root == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "root is required")
	}
	return []models.DirectoryEntry{}, nil
}

func catalogTestContext(t *testing.T, method, target string, payload interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestCatalogHandlerStartScan(t *testing.T) {
	mock := &catalogServiceMock{}
	handler := NewCatalogHandler(mock)

	c, w := catalogTestContext(t, http.MethodPost, "/files/scan", dto.StartScanRequest{RootPath: "/data"})
	handler.StartScan(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "scan-1")
}

func TestCatalogHandlerStartScanMissingRoot(t *testing.T) {
	handler := NewCatalogHandler(&catalogServiceMock{})
	c, w := catalogTestContext(t, http.MethodPost, "/files/scan", map[string]interface{}{})
	handler.StartScan(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogHandlerStartScanQueueFull(t *testing.T) {
	mock := &catalogServiceMock{scanErr: appErrors.Clone(appErrors.ErrConflict, "scan queue full")}
	handler := NewCatalogHandler(mock)

	c, w := catalogTestContext(t, http.MethodPost, "/files/scan", dto.StartScanRequest{RootPath: "/data"})
	handler.StartScan(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCatalogHandlerSearchMapsFilters(t *testing.T) {
	mock := &catalogServiceMock{searchResp: []models.FileEntry{{ID: "f1", FilePath: "/data/a.txt"}}}
	handler := NewCatalogHandler(mock)

	c, w := catalogTestContext(t, http.MethodGet, "/files/search?path_prefix=/data&temperature=cold&limit=10", nil)
	handler.Search(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/data", mock.lastFilter.PathPrefix)
	require.NotNil(t, mock.lastFilter.Temperature)
	assert.Equal(t, models.TierCold, *mock.lastFilter.Temperature)
	assert.Equal(t, 10, mock.lastFilter.Limit)
}

func TestCatalogHandlerSearchRejectsBadTier(t *testing.T) {
	handler := NewCatalogHandler(&catalogServiceMock{})
	c, w := catalogTestContext(t, http.MethodGet, "/files/search?temperature=lukewarm", nil)
	handler.Search(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogHandlerGetFileNotFound(t *testing.T) {
	mock := &catalogServiceMock{fileErr: appErrors.Clone(appErrors.ErrNotFound, "file not found")}
	handler := NewCatalogHandler(mock)

	c, w := catalogTestContext(t, http.MethodGet, "/files/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.GetFile(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogHandlerDirectoriesRequiresRoot(t *testing.T) {
	handler := NewCatalogHandler(&catalogServiceMock{})
	c, w := catalogTestContext(t, http.MethodGet, "/files/directories", nil)
	handler.Directories(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
