package mailbox

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/YKarmar/JobDigest/internal/types"
)

// Mailbox 是流水线需要的两个邮箱操作
type Mailbox interface {
	ListRecent(ctx context.Context, since time.Time) ([]types.Candidate, error)
	FetchTree(ctx context.Context, id string) (*types.MessagePart, error)
}

// 在调用模型前按发件人/主题关键词过滤
type Filter struct {
	IgnoreSenders         []string
	IgnoreSubjectKeywords []string
}

// 发件人或主题命中规则（忽略大小写的子串匹配）
func (f Filter) Ignored(c types.Candidate) bool {
	from := strings.ToLower(c.From)
	for _, sender := range f.IgnoreSenders {
		if sender != "" && strings.Contains(from, strings.ToLower(sender)) {
			log.Printf("filtering email from %s due to sender rule: %s", c.From, sender)
			return true
		}
	}
	subject := strings.ToLower(c.Subject)
	for _, keyword := range f.IgnoreSubjectKeywords {
		if keyword != "" && strings.Contains(subject, strings.ToLower(keyword)) {
			log.Printf("filtering email with subject %q due to keyword rule: %s", c.Subject, keyword)
			return true
		}
	}
	return false
}

// 保留未被过滤的邮件，顺序不变
func (f Filter) Apply(candidates []types.Candidate) []types.Candidate {
	kept := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !f.Ignored(c) {
			kept = append(kept, c)
		}
	}
	return kept
}
