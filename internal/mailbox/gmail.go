package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/YKarmar/JobDigest/internal/credential"
	"github.com/YKarmar/JobDigest/internal/types"
)

const (
	user          = "me"
	gmailPageSize = 100
)

// 通过Gmail API读取邮件
type GmailMailbox struct {
	srv         *gmail.Service
	maxMessages int
}

func NewGmailMailbox(srv *gmail.Service, maxMessages int) *GmailMailbox {
	return &GmailMailbox{srv: srv, maxMessages: maxMessages}
}

// 列出指定日期之后的邮件（不含垃圾箱），读取主题和发件人
func (g *GmailMailbox) ListRecent(ctx context.Context, since time.Time) ([]types.Candidate, error) {
	query := "after:" + since.Format("2006/01/02")

	var ids []string
	pageToken := ""
	for {
		call := g.srv.Users.Messages.List(user).
			Q(query).
			IncludeSpamTrash(false).
			MaxResults(gmailPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		if resp.NextPageToken == "" || (g.maxMessages > 0 && len(ids) >= g.maxMessages) {
			break
		}
		pageToken = resp.NextPageToken
	}
	if g.maxMessages > 0 && len(ids) > g.maxMessages {
		ids = ids[:g.maxMessages]
	}

	candidates := make([]types.Candidate, 0, len(ids))
	for _, id := range ids {
		msg, err := g.srv.Users.Messages.Get(user, id).
			Format("metadata").
			MetadataHeaders("Subject", "From").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("get metadata %s: %w", id, err)
		}

		c := types.Candidate{ID: msg.Id}
		if msg.Payload != nil {
			for _, h := range msg.Payload.Headers {
				switch strings.ToLower(h.Name) {
				case "subject":
					c.Subject = h.Value
				case "from":
					c.From = h.Value
				}
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// 获取完整邮件并转换结构
func (g *GmailMailbox) FetchTree(ctx context.Context, id string) (*types.MessagePart, error) {
	msg, err := g.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	if msg.Payload == nil {
		return nil, fmt.Errorf("message %s has no payload", id)
	}
	return convertGmailPart(msg.Payload), nil
}

func convertGmailPart(p *gmail.MessagePart) *types.MessagePart {
	part := &types.MessagePart{MimeType: p.MimeType}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			part.Charset = contentTypeCharset(h.Value)
			break
		}
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertGmailPart(child))
	}
	return part
}

func contentTypeCharset(value string) string {
	var h message.Header
	h.Set("Content-Type", value)
	_, params, err := h.ContentType()
	if err != nil {
		return ""
	}
	return params["charset"]
}

// 浏览器授权后粘贴回来的授权码
type CodePrompt func(authURL string) (string, error)

// 创建只读Gmail客户端，首次使用时通过 prompt 授权并保存token
func NewGmailService(ctx context.Context, credentialsFile string, store credential.TokenStore, prompt CodePrompt) (*gmail.Service, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	tok, err := store.Load()
	if errors.Is(err, credential.ErrNoToken) {
		tok, err = tokenFromWeb(ctx, oauthConfig, prompt)
		if err != nil {
			return nil, err
		}
		if err := store.Save(tok); err != nil {
			return nil, err
		}
		log.Printf("saved new Gmail token")
	} else if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	src := credential.PersistingTokenSource(oauthConfig.TokenSource(ctx, tok), store, tok)
	srv, err := gmail.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, prompt CodePrompt) (*oauth2.Token, error) {
	if prompt == nil {
		return nil, fmt.Errorf("no saved Gmail token and no way to ask for authorization")
	}
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	code, err := prompt(authURL)
	if err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}
