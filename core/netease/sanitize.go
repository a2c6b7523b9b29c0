package netease

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxNameRunes = 120

var (
	// 文件系统非法字符和控制字符
	illegalChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)
	// 会和分离工具的输出命名（"xxx (1)_vocals.wav" 之类）混淆的括号和全角标点
	collidingChars = regexp.MustCompile(`[()\[\]{}（）【】［］｛｝「」『』《》〈〉，。！？：；、～＂＇“”‘’·…]`)
	underscoreRuns = regexp.MustCompile(`_{2,}`)
)

// SanitizeFilename 生成可安全落盘、且对模糊匹配友好的文件名（不含扩展名）。
// 多次调用结果不变。
func SanitizeFilename(name string) string {
	s := illegalChars.ReplaceAllString(name, "_")
	s = collidingChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, " ._")

	if utf8.RuneCountInString(s) > maxNameRunes {
		s = string([]rune(s)[:maxNameRunes])
		s = strings.Trim(s, " ._")
	}
	if s == "" {
		return "untitled"
	}
	return s
}
