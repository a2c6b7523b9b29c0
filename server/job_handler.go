package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"CoverFM/core/delivery"
	"CoverFM/logger"
	"CoverFM/model"
	"CoverFM/repository"
)

// CoverRequest POST /api/cover
type CoverRequest struct {
	Query         string `json:"query"`
	SelectorIndex int    `json:"selectorIndex"`
	Quality       int    `json:"quality"`
	TargetID      string `json:"targetId,omitempty"`
	IsGroup       bool   `json:"isGroup,omitempty"`
}

// SpeechRequest POST /api/tts。指定 targetId 或 async 时排队执行，否则同步返回 wav。
type SpeechRequest struct {
	Text     string `json:"text"`
	TargetID string `json:"targetId,omitempty"`
	IsGroup  bool   `json:"isGroup,omitempty"`
	Async    bool   `json:"async,omitempty"`
}

func target(id string, group bool) *delivery.Target {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return &delivery.Target{ID: id, IsGroup: group}
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	var req CoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求格式错误")
		return
	}
	track := model.TrackRequest{
		Query:         strings.TrimSpace(req.Query),
		SelectorIndex: req.SelectorIndex,
		Quality:       req.Quality,
	}
	if track.Quality == 0 {
		track.Quality = s.deps.Defaults.Quality
	}
	if err := track.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.deps.Jobs.SubmitCover(r.Context(), track, target(req.TargetID, req.IsGroup))
	if err != nil {
		logger.Error("提交翻唱任务失败", logger.String("query", track.Query), logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	logger.Info("收到翻唱请求",
		logger.String("jobId", job.ID),
		logger.String("request", track.String()),
		logger.String("client", ClientIDFromContext(r.Context())))
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求格式错误")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "文本不能为空")
		return
	}

	if to := target(req.TargetID, req.IsGroup); to != nil || req.Async {
		job, err := s.deps.Jobs.SubmitSpeech(r.Context(), text, to)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	if s.deps.Speech == nil {
		writeError(w, http.StatusNotImplemented, "未启用语音合成")
		return
	}
	res := s.deps.Speech.Speech(r.Context(), text, nil)
	if !res.Success {
		writeJSON(w, statusForKind(res.ErrorKind), errorResponse{Error: res.Message, ErrorKind: res.ErrorKind})
		return
	}

	name := filepath.Base(res.FinalPath)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	http.ServeFile(w, r, res.FinalPath)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	job, err := s.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "任务不存在")
			return
		}
		logger.Error("查询任务失败", logger.String("jobId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "查询任务失败")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.deps.Jobs.List(r.Context(), limit)
	if err != nil {
		logger.Error("查询任务列表失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "查询任务失败")
		return
	}
	if jobs == nil {
		jobs = []*model.CoverJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}
