package separation

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindResultsDir 从 start 开始逐级向上查找 MSST-WebUI-zluda/results
func FindResultsDir(start string) (string, error) {
	cur, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("解析起始目录失败: %w", err)
	}
	for {
		candidate := filepath.Join(cur, "MSST-WebUI-zluda", "results")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("未找到 MSST-WebUI-zluda/results 目录，请检查目录结构或设置 MSST_RESULTS_DIR")
		}
		cur = parent
	}
}
