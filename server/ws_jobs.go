package server

import (
	"context"
	"net/http"
	"time"

	"CoverFM/core/pipeline"
	"CoverFM/logger"
	"CoverFM/model"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage 推送给客户端的消息，type 为 event 或 job
type wsMessage struct {
	Type  string          `json:"type"`
	Event *pipeline.Event `json:"event,omitempty"`
	Job   *model.CoverJob `json:"job,omitempty"`
}

func muxVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// handleJobEvents 推送任务阶段事件，任务结束后发送最终状态并关闭连接
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	if _, err := s.deps.Jobs.Get(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "任务不存在")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	events, cancel, ok := s.deps.Jobs.Subscribe(id)
	defer cancel()
	if !ok {
		s.writeFinal(conn, id)
		return
	}

	// 读循环只用于感知客户端断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				s.writeFinal(conn, id)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(wsMessage{Type: "event", Event: &ev}); err != nil {
				logger.Debug("推送事件失败", logger.String("jobId", id), logger.ErrorField(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *Server) writeFinal(conn *websocket.Conn, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := s.deps.Jobs.Get(ctx, id)
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(wsMessage{Type: "job", Job: job}); err != nil {
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(wsWriteWait))
}
