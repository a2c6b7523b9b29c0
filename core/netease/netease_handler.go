package netease

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"CoverFM/core/errs"
	"CoverFM/logger"
	"CoverFM/model"
)

// NeteaseHandler 点歌接口：只查询，不下载
type NeteaseHandler struct {
	acquirer *Acquirer
}

// NewNeteaseHandler 创建新的点歌处理器
func NewNeteaseHandler(acquirer *Acquirer) *NeteaseHandler {
	return &NeteaseHandler{acquirer: acquirer}
}

// SearchResponse 搜索响应结构
type SearchResponse struct {
	Success bool            `json:"success"`
	Choose  int             `json:"choose,omitempty"`
	Data    *model.SongInfo `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// HandleSearch GET /api/netease/search?q=&choose=&quality=
func (h *NeteaseHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(SearchResponse{Error: "请提供搜索关键词"})
		return
	}
	choose, _ := strconv.Atoi(r.URL.Query().Get("choose"))
	quality, _ := strconv.Atoi(r.URL.Query().Get("quality"))

	info, used, err := h.acquirer.Resolve(r.Context(), model.TrackRequest{
		Query:         query,
		SelectorIndex: choose,
		Quality:       quality,
	})
	if err != nil {
		logger.Warn("点歌搜索失败", logger.String("query", query), logger.ErrorField(err))
		status := http.StatusBadGateway
		if errs.KindOf(err) == errs.KindNotFound {
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(SearchResponse{Error: errs.UserMessage(err)})
		return
	}

	json.NewEncoder(w).Encode(SearchResponse{Success: true, Choose: used, Data: info})
}
