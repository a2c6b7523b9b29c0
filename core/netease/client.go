package netease

import (
	"net/http"
	"strings"
	"time"

	"CoverFM/cache"
)

// Client 音乐搜索 API 客户端 ({base}/v2/music/netease)
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.ResponseCache
	cacheTTL   time.Duration
}

// NewClient 创建新的API客户端
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBaseURL 设置API基础URL
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// SetHTTPClient 替换底层 http.Client，下载音频也复用它
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetCache 设置响应缓存
func (c *Client) SetCache(rc cache.ResponseCache, ttl time.Duration) {
	c.cache = rc
	c.cacheTTL = ttl
}

// HTTPClient 返回底层 http.Client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}
