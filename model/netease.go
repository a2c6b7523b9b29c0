package model

// SongInfo 搜索 API (/v2/music/netease) 返回的 data 字段
type SongInfo struct {
	ID       int64  `json:"id"`
	Song     string `json:"song"`
	Singer   string `json:"singer"`
	Album    string `json:"album"`
	Quality  string `json:"quality"`
	Interval string `json:"interval"`
	Size     string `json:"size"`
	Kbps     string `json:"kbps"`
	Cover    string `json:"cover"`
	Link     string `json:"link"`
	URL      string `json:"url"`
}

// SearchResponse 搜索 API 的完整响应
type SearchResponse struct {
	Code    int       `json:"code"`
	Message string    `json:"message,omitempty"`
	Data    *SongInfo `json:"data"`
}
