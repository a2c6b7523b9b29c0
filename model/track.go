package model

import "fmt"

// TrackRequest 标识要获取的歌曲。
// SelectorIndex 从 1 开始，对应搜索 API 返回的候选序号；0 表示由系统自动挑选。
type TrackRequest struct {
	Query         string `json:"query"`
	SelectorIndex int    `json:"selectorIndex"`
	Quality       int    `json:"quality"`
}

func (r TrackRequest) String() string {
	return fmt.Sprintf("%s#%d@q%d", r.Query, r.SelectorIndex, r.Quality)
}

// Validate 检查请求参数
func (r TrackRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("歌曲名不能为空")
	}
	if r.SelectorIndex < 0 {
		return fmt.Errorf("无效的序号: %d", r.SelectorIndex)
	}
	if r.Quality < 0 {
		return fmt.Errorf("无效的音质: %d", r.Quality)
	}
	return nil
}
