package mailbox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/YKarmar/JobDigest/internal/types"
)

// 把原始邮件解析成 MessagePart 树
func ReadTree(r io.Reader) (*types.MessagePart, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return partFromEntity(entity, err)
}

// 文本正文以base64url保存；go-message无法转成UTF-8时保留声明的charset交给mimetext处理，
// 非文本叶子只保留类型
func partFromEntity(e *message.Entity, readErr error) (*types.MessagePart, error) {
	mediaType, params, err := e.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	part := &types.MessagePart{MimeType: strings.ToLower(mediaType)}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return nil, fmt.Errorf("read %s part: %w", part.MimeType, err)
			}
			sub, err2 := partFromEntity(child, err)
			if err2 != nil {
				return nil, err2
			}
			part.Parts = append(part.Parts, sub)
		}
		return part, nil
	}

	if !strings.HasPrefix(part.MimeType, "text/") {
		return part, nil
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", part.MimeType, err)
	}
	part.Data = base64.RawURLEncoding.EncodeToString(body)
	if readErr != nil && message.IsUnknownCharset(readErr) {
		part.Charset = params["charset"]
	}
	return part, nil
}
