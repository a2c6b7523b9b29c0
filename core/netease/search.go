package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"CoverFM/cache"
	"CoverFM/core/errs"
	"CoverFM/logger"
	"CoverFM/model"
)

const stageName = "acquire"

// Search 按 (歌名, 音质, 序号) 查询一首歌。
// HTTP 非 200、code != 200 或没有可播放链接都返回 NotFound，调用方可换序号重试。
func (c *Client) Search(ctx context.Context, word string, quality, choose int) (*model.SongInfo, error) {
	key := cache.RequestKey(word, strconv.Itoa(quality), strconv.Itoa(choose))

	if c.cache != nil {
		if data, ok := c.cache.Get(ctx, key); ok {
			info, err := decodeSearch(data)
			if err == nil {
				logger.Debug("搜索结果命中缓存", logger.String("word", word), logger.Int("choose", choose))
				return info, nil
			}
			logger.Warn("缓存的搜索结果无效，重新请求", logger.String("key", key), logger.ErrorField(err))
		}
	}

	params := url.Values{}
	params.Set("word", word)
	params.Set("quality", strconv.Itoa(quality))
	params.Set("choose", strconv.Itoa(choose))
	reqURL := fmt.Sprintf("%s/v2/music/netease?%s", c.baseURL, params.Encode())

	logger.Info("开始搜索歌曲",
		logger.Stage(stageName),
		logger.String("word", word),
		logger.Int("quality", quality),
		logger.Int("choose", choose))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errs.E(errs.KindRemoteTool, stageName, "创建请求", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.E(errs.KindRemoteTool, stageName, "请求搜索API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.NotFound(stageName, "API返回错误状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.E(errs.KindRemoteTool, stageName, "读取响应", err)
	}

	info, err := decodeSearch(body)
	if err != nil {
		return nil, err
	}

	// 只缓存成功的响应，失败多半是临时性的
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.cacheTTL); err != nil {
			logger.Warn("写入搜索缓存失败", logger.String("key", key), logger.ErrorField(err))
		}
	}

	logger.Info("搜索成功",
		logger.Stage(stageName),
		logger.String("song", info.Song),
		logger.String("singer", info.Singer),
		logger.Int("choose", choose))
	return info, nil
}

func decodeSearch(body []byte) (*model.SongInfo, error) {
	var result model.SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errs.E(errs.KindRemoteTool, stageName, "解析响应", err)
	}
	if result.Code != http.StatusOK {
		return nil, errs.NotFound(stageName, "API返回错误: %s (code: %d)", result.Message, result.Code)
	}
	if result.Data == nil || result.Data.URL == "" {
		return nil, errs.NotFound(stageName, "API未返回有效音频链接")
	}
	return result.Data, nil
}
