package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"CoverFM/core/errs"
	"CoverFM/core/netease"
	"CoverFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// songAPI 按 choose 返回不同的歌，未登记的序号返回 code=404
type songAPI struct {
	mu    sync.Mutex
	songs map[int]string
	srv   *httptest.Server
}

func newSongAPI(t *testing.T) *songAPI {
	a := &songAPI{songs: make(map[int]string)}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/music/netease" {
			w.Write([]byte("fLaC-" + r.URL.Path))
			return
		}
		choose, _ := strconv.Atoi(r.URL.Query().Get("choose"))
		a.mu.Lock()
		song, ok := a.songs[choose]
		a.mu.Unlock()
		if !ok {
			fmt.Fprint(w, `{"code":404,"message":"not found"}`)
			return
		}
		fmt.Fprintf(w, `{"code":200,"data":{"url":"%s/%s.flac","song":%q,"id":%d,"singer":"周杰伦"}}`, a.srv.URL, song, song, choose)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *songAPI) set(choose int, song string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.songs[choose] = song
}

func TestCoverCacheBelongsToRequestedCandidate(t *testing.T) {
	o, s := newStubPipeline(t)
	api := newSongAPI(t)
	api.set(1, "songA")
	o.acquirer = netease.NewAcquirer(netease.NewClient(api.srv.URL, 5*time.Second), s.dir, nil, time.Millisecond, 9)

	req := model.TrackRequest{Query: "晴天", SelectorIndex: 3, Quality: 9}
	first := o.Cover(context.Background(), req, nil)
	assert.False(t, first.Success)
	assert.Equal(t, StageAcquire, first.Stage)
	assert.Equal(t, errs.KindNotFound.String(), first.ErrorKind)
	assert.Equal(t, 0, s.mixes)

	api.set(3, "songB")
	second := o.Cover(context.Background(), req, nil)
	require.True(t, second.Success, second.Message)
	assert.False(t, second.Cached)
	assert.Equal(t, filepath.Join(s.dir, "final_songB_other.wav"), second.FinalPath)

	third := o.Cover(context.Background(), req, nil)
	require.True(t, third.Success)
	assert.True(t, third.Cached)
	assert.Equal(t, second.FinalPath, third.FinalPath)
}
