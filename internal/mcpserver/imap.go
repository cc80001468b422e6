package mcpserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/YKarmar/JobDigest/internal/mailbox"
	"github.com/YKarmar/JobDigest/internal/types"
)

// IMAP邮箱配置
type IMAPConfig struct {
	Host     string
	Email    string
	Password string
	UseTLS   bool
	Folders  []string
}

// 每次请求新建一个IMAP连接，请求结束即登出
type IMAPSource struct {
	cfg IMAPConfig
}

func NewIMAPSource(cfg IMAPConfig) *IMAPSource {
	return &IMAPSource{cfg: cfg}
}

func (s *IMAPSource) connect() (*client.Client, error) {
	if s.cfg.Host == "" {
		return nil, fmt.Errorf("imap.host is not configured")
	}

	var (
		c   *client.Client
		err error
	)
	if s.cfg.UseTLS {
		c, err = client.DialTLS(s.cfg.Host, &tls.Config{})
	} else {
		c, err = client.Dial(s.cfg.Host)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to IMAP server: %w", err)
	}
	c.Timeout = 60 * time.Second

	if err := c.Login(s.cfg.Email, s.cfg.Password); err != nil {
		c.Close()
		return nil, fmt.Errorf("IMAP login: %w", err)
	}
	return c, nil
}

// 按文件夹顺序列出 since 之后的邮件，每个文件夹内新邮件在前，总数不超过 limit。
// 任一文件夹失败都返回错误，不能把读取失败当成没有邮件。
func (s *IMAPSource) List(ctx context.Context, since time.Time, limit int) ([]types.Candidate, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	var candidates []types.Candidate
	for _, folder := range s.cfg.Folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := 0
		if limit > 0 {
			remaining = limit - len(candidates)
			if remaining <= 0 {
				break
			}
		}

		found, err := listFolder(c, folder, since, remaining)
		if err != nil {
			log.Printf("list folder %s failed: %v", folder, err)
			return nil, fmt.Errorf("list folder %s: %w", folder, err)
		}
		candidates = append(candidates, found...)
	}
	return candidates, nil
}

func listFolder(c *client.Client, folder string, since time.Time, limit int) ([]types.Candidate, error) {
	mbox, err := c.Select(folder, true)
	if err != nil {
		return nil, err
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// UID越大越新，保留最新的 limit 封
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope}, messages)
	}()

	var fetched []*imap.Message
	for msg := range messages {
		fetched = append(fetched, msg)
	}
	if err := <-done; err != nil {
		return nil, err
	}

	sort.Slice(fetched, func(i, j int) bool { return fetched[i].Uid > fetched[j].Uid })
	candidates := make([]types.Candidate, 0, len(fetched))
	for _, msg := range fetched {
		candidates = append(candidates, toCandidate(folder, msg))
	}
	return candidates, nil
}

func toCandidate(folder string, msg *imap.Message) types.Candidate {
	c := types.Candidate{ID: FormatID(folder, msg.Uid)}
	if msg.Envelope != nil {
		c.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			c.From = msg.Envelope.From[0].Address()
		}
	}
	return c
}

// 下载完整邮件（不标记已读）并解析
func (s *IMAPSource) Fetch(ctx context.Context, id string) (*types.MessagePart, error) {
	folder, uid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := c.Select(folder, true); err != nil {
		return nil, fmt.Errorf("select %s: %w", folder, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var found *imap.Message
	for msg := range messages {
		if found == nil {
			found = msg
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	body := found.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("%s: server returned no body", id)
	}
	return mailbox.ReadTree(body)
}

// 文件夹名转义后不含空格，ID 能经过粗筛回复原样返回
func FormatID(folder string, uid uint32) string {
	return url.PathEscape(folder) + ":" + strconv.FormatUint(uint64(uid), 10)
}

func ParseID(id string) (string, uint32, error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid message id %q", id)
	}
	folder, err := url.PathUnescape(id[:i])
	if err != nil {
		return "", 0, fmt.Errorf("invalid folder in id %q: %w", id, err)
	}
	uid, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil || uid == 0 {
		return "", 0, fmt.Errorf("invalid uid in id %q", id)
	}
	return folder, uint32(uid), nil
}
