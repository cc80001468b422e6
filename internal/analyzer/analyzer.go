package analyzer

import (
	"strings"
	"unicode/utf8"
)

// 默认正文截断长度（字符数），避免超长邮件撑爆上下文
const DefaultMaxBodyChars = 20000

// 截断文本到指定长度，按rune切分避免破坏UTF-8
func truncateText(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen]) + "..."
}

// 提取JSON字符串，兼容模型用代码块包裹的回复
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	end := strings.LastIndex(text, "}")
	if end == -1 || end <= start {
		return text
	}

	return text[start : end+1]
}
