package mimetext

import (
	"strings"

	"github.com/YKarmar/JobDigest/internal/types"
)

const (
	mimeTextPlain   = "text/plain"
	mimeTextHTML    = "text/html"
	mimeAlternative = "multipart/alternative"
	mimeMultipart   = "multipart/"
)

// 提取可见文本：multipart/alternative 只取 text/plain 子节点，其他 multipart/* 和没有类型的节点遍历全部子节点
func Extract(part *types.MessagePart) string {
	if part == nil {
		return ""
	}

	var texts []string

	switch part.MimeType {
	case mimeTextPlain:
		if part.Data != "" {
			texts = append(texts, decodeText(part.Data, part.Charset))
		}
	case mimeTextHTML:
		if part.Data != "" {
			texts = append(texts, HTMLToText(decodeText(part.Data, part.Charset)))
		}
	}

	if len(part.Parts) > 0 {
		switch {
		case part.MimeType == mimeAlternative:
			for _, child := range part.Parts {
				if child != nil && child.MimeType == mimeTextPlain {
					texts = append(texts, Extract(child))
				}
			}
		case part.MimeType == "", strings.HasPrefix(part.MimeType, mimeMultipart):
			for _, child := range part.Parts {
				texts = append(texts, Extract(child))
			}
		}
	}

	return join(texts)
}

func join(texts []string) string {
	var kept []string
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			kept = append(kept, t)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
