package mimetext

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// 邮件中常见但需要显式注册的字符集
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// decodeText 解码base64url正文并转换为UTF-8，失败时返回空字符串
func decodeText(data, cs string) string {
	raw, ok := decodePayload(data)
	if !ok {
		return ""
	}
	text, ok := toUTF8(raw, cs)
	if !ok {
		return ""
	}
	return text
}

// Gmail返回的数据有时带填充有时不带，也可能混入标准字母表
func decodePayload(data string) ([]byte, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(data), "=")
	if b, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return b, true
	}
	if b, err := base64.RawStdEncoding.DecodeString(trimmed); err == nil {
		return b, true
	}
	return nil, false
}

func toUTF8(raw []byte, cs string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(cs)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}

	r, err := charset.Reader(cs, bytes.NewReader(raw))
	if err != nil {
		return "", false
	}
	out, err := io.ReadAll(r)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}
