package netease

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSearch(t *testing.T) {
	api := newFakeSearchAPI(t, "2", "晴天")
	acq, dir := newTestAcquirer(t, api, nil)
	h := NewNeteaseHandler(acq)

	rec := httptest.NewRecorder()
	h.HandleSearch(rec, httptest.NewRequest(http.MethodGet, "/api/netease/search?q="+url.QueryEscape("晴天")+"&choose=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Choose)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "晴天", resp.Data.Song)
	assert.Equal(t, int64(186016), resp.Data.ID)

	// 只查询不下载
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleSearchErrors(t *testing.T) {
	api := newFakeSearchAPI(t, "99", "晴天")
	acq, _ := newTestAcquirer(t, api, nil)
	h := NewNeteaseHandler(acq)

	rec := httptest.NewRecorder()
	h.HandleSearch(rec, httptest.NewRequest(http.MethodGet, "/api/netease/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSearch(rec, httptest.NewRequest(http.MethodGet, "/api/netease/search?q="+url.QueryEscape("晴天")+"&choose=3", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}
