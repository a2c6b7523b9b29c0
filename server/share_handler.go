package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"CoverFM/core/delivery"
	"CoverFM/logger"
)

// ShareRequest 把网易云歌曲以音乐卡片发到聊天
type ShareRequest struct {
	TargetID string `json:"targetId"`
	IsGroup  bool   `json:"isGroup"`
	MusicID  string `json:"musicId"`
	Type     string `json:"type,omitempty"` // 默认 163
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求格式错误")
		return
	}
	if strings.TrimSpace(req.TargetID) == "" || strings.TrimSpace(req.MusicID) == "" {
		writeError(w, http.StatusBadRequest, "targetId 和 musicId 不能为空")
		return
	}
	if req.Type == "" {
		req.Type = "163"
	}

	to := delivery.Target{ID: strings.TrimSpace(req.TargetID), IsGroup: req.IsGroup}
	receipt, err := s.deps.Sharer.SendMusicCard(r.Context(), to, req.Type, req.MusicID)
	if err != nil {
		logger.Warn("发送音乐卡片失败", logger.String("target", to.String()), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "发送失败")
		return
	}
	status := http.StatusOK
	if !receipt.OK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, receipt)
}
