package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"CoverFM/core/errs"
	"CoverFM/logger"
)

// minSimilarity 低于该相似度的候选视为另一首歌
const minSimilarity = 0.6

// MatchStem 在 dir 中找 <base><suffix>.<ext> 文件。分离工具可能改写文件名，
// 先找完全一致的，否则按最长公共子序列相似度选最接近 expectedBase 的候选。
func MatchStem(dir, expectedBase, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errs.E(errs.KindRemoteTool, string(StageMatchVocals), "读取分离结果目录", err)
	}

	type candidate struct {
		path  string
		base  string
		score float64
	}
	var cands []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if !strings.HasSuffix(stem, suffix) || strings.HasPrefix(name, ".") {
			continue
		}
		base := strings.TrimSuffix(stem, suffix)
		if base == expectedBase {
			return filepath.Join(dir, name), nil
		}
		cands = append(cands, candidate{path: filepath.Join(dir, name), base: base, score: Similarity(base, expectedBase)})
	}

	if len(cands) == 0 {
		return "", errs.RemoteTool(string(StageMatchVocals), "匹配分离结果",
			&noCandidateError{dir: dir, suffix: suffix})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].base < cands[j].base
	})
	best := cands[0]
	if best.score < minSimilarity {
		return "", errs.RemoteTool(string(StageMatchVocals), "匹配分离结果",
			&lowSimilarityError{expected: expectedBase, best: best.base, score: best.score})
	}

	logger.Info("分离结果文件名与预期不一致，按相似度匹配",
		logger.Stage(string(StageMatchVocals)),
		logger.String("expected", expectedBase),
		logger.String("matched", filepath.Base(best.path)),
		logger.Any("score", best.score))
	return best.path, nil
}

// Similarity 2*LCS/(len(a)+len(b))，按字符计算，取值 [0,1]
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 1
	}
	return 2 * float64(lcs(ra, rb)) / float64(len(ra)+len(rb))
}

func lcs(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

type noCandidateError struct {
	dir    string
	suffix string
}

func (e *noCandidateError) Error() string {
	return "分离结果目录 " + e.dir + " 中没有 *" + e.suffix + ".* 文件"
}

type lowSimilarityError struct {
	expected string
	best     string
	score    float64
}

func (e *lowSimilarityError) Error() string {
	return "没有与 " + e.expected + " 足够相似的分离结果，最接近的是 " + e.best
}
