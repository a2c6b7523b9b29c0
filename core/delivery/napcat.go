// Package delivery 通过 Napcat (OneBot HTTP) 把结果发到 QQ 群或私聊。
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"CoverFM/logger"
)

// Target 消息接收方
type Target struct {
	ID      string `json:"id"`
	IsGroup bool   `json:"isGroup"`
}

func (t Target) String() string {
	if t.IsGroup {
		return "group:" + t.ID
	}
	return "private:" + t.ID
}

// Segment OneBot 消息段
type Segment struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Receipt 发送结果
type Receipt struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId,omitempty"`
	RetCode   int    `json:"retcode"`
	Message   string `json:"message,omitempty"`
}

type apiResponse struct {
	Status  string `json:"status"`
	RetCode int    `json:"retcode"`
	Message string `json:"message"`
	Wording string `json:"wording"`
	Data    struct {
		MessageID json.Number `json:"message_id"`
	} `json:"data"`
}

// Client Napcat HTTP 客户端
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient token 为空时不带鉴权头
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient 替换底层 http.Client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SendRecord 发送语音
func (c *Client) SendRecord(ctx context.Context, target Target, path string) (Receipt, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Receipt{}, fmt.Errorf("解析语音路径失败: %w", err)
	}
	return c.Send(ctx, target, Segment{Type: "record", Data: map[string]interface{}{"file": "file://" + filepath.ToSlash(abs)}})
}

// SendText 发送文本
func (c *Client) SendText(ctx context.Context, target Target, text string) (Receipt, error) {
	return c.Send(ctx, target, Segment{Type: "text", Data: map[string]interface{}{"text": text}})
}

// SendMusicCard 发送音乐卡片，musicType 如 "163"
func (c *Client) SendMusicCard(ctx context.Context, target Target, musicType, musicID string) (Receipt, error) {
	return c.Send(ctx, target, Segment{Type: "music", Data: map[string]interface{}{"type": musicType, "id": musicID}})
}

// Send 发送任意消息段。status=ok 且 retcode=0 视为成功；HTTP 层面的失败返回 error。
func (c *Client) Send(ctx context.Context, target Target, segments ...Segment) (Receipt, error) {
	if target.ID == "" {
		return Receipt{}, fmt.Errorf("接收方不能为空")
	}
	if len(segments) == 0 {
		return Receipt{}, fmt.Errorf("消息内容不能为空")
	}

	endpoint, payload := "/send_private_msg", map[string]interface{}{"user_id": numericID(target.ID), "message": segments}
	if target.IsGroup {
		endpoint, payload = "/send_group_msg", map[string]interface{}{"group_id": numericID(target.ID), "message": segments}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("序列化消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("请求Napcat失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Receipt{}, fmt.Errorf("读取Napcat响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Receipt{}, fmt.Errorf("Napcat返回错误状态码: %d", resp.StatusCode)
	}

	var result apiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return Receipt{}, fmt.Errorf("解析Napcat响应失败: %w", err)
	}

	receipt := Receipt{
		OK:        result.Status == "ok" && result.RetCode == 0,
		MessageID: result.Data.MessageID.String(),
		RetCode:   result.RetCode,
		Message:   firstNonEmpty(result.Wording, result.Message),
	}
	if receipt.OK {
		logger.Info("消息已发送",
			logger.String("target", target.String()),
			logger.String("type", segments[0].Type),
			logger.String("messageId", receipt.MessageID))
	} else {
		logger.Warn("Napcat发送失败",
			logger.String("target", target.String()),
			logger.Int("retcode", result.RetCode),
			logger.String("message", receipt.Message))
	}
	return receipt, nil
}

// numericID 纯数字的号码按数字发送
func numericID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
