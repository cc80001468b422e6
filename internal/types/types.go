package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// 无法从正文确定字段时使用的占位值
const (
	NotFound      = "Not Found"
	FalsePositive = "False Positive"
)

var (
	ErrInvalidCandidate = errors.New("invalid candidate")
	ErrInvalidPosting   = errors.New("invalid job posting")
)

// 一次运行的结果类型，"没有结果"必须显式表达
type Outcome string

const (
	OutcomeFound        Outcome = "FOUND"         // 找到至少一条招聘信息
	OutcomeNothingFound Outcome = "NOTHING_FOUND" // 运行完成但没有相关邮件
)

// 邮件的一个MIME节点
type MessagePart struct {
	MimeType string         `json:"mime_type"`
	Data     string         `json:"data,omitempty"`    // base64url编码，为空表示没有正文
	Charset  string         `json:"charset,omitempty"` // 为空按UTF-8处理
	Parts    []*MessagePart `json:"parts,omitempty"`
}

// 待筛选的邮件（主题 + ID）
type Candidate struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from,omitempty"` // 只用于本地过滤，不发送给模型
}

func (c Candidate) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: empty id (subject %q)", ErrInvalidCandidate, c.Subject)
	}
	return nil
}

// 从招聘邮件中提取的结构化信息，JSON字段名与模型约定一致
type JobPosting struct {
	CompanyName         string   `json:"company_name"`
	Position            string   `json:"position"`
	ApplicationLink     string   `json:"application_link"`
	ApplicationDeadline string   `json:"application_deadline"`
	Requirements        []string `json:"requirements"`
	Other               []string `json:"other"`
}

// 全部字段都标记为误报的记录
func FalsePositivePosting() JobPosting {
	return JobPosting{
		CompanyName:         FalsePositive,
		Position:            FalsePositive,
		ApplicationLink:     FalsePositive,
		ApplicationDeadline: FalsePositive,
		Requirements:        []string{FalsePositive},
		Other:               []string{FalsePositive},
	}
}

func (p JobPosting) scalars() []string {
	return []string{p.CompanyName, p.Position, p.ApplicationLink, p.ApplicationDeadline}
}

// 是否为统一的误报记录
func (p JobPosting) IsFalsePositive() bool {
	for _, v := range p.scalars() {
		if v != FalsePositive {
			return false
		}
	}
	return isSentinelList(p.Requirements, FalsePositive) && isSentinelList(p.Other, FalsePositive)
}

// 清理空白，空字段补上 "Not Found"
func (p *JobPosting) Normalize() {
	p.CompanyName = normalizeField(p.CompanyName)
	p.Position = normalizeField(p.Position)
	p.ApplicationLink = normalizeField(p.ApplicationLink)
	p.ApplicationDeadline = normalizeField(p.ApplicationDeadline)
	p.Requirements = normalizeList(p.Requirements)
	p.Other = normalizeList(p.Other)
	if p.IsFalsePositive() {
		*p = FalsePositivePosting()
	}
}

// 校验占位值约束：要么全部是误报，要么完全不含误报标记
func (p JobPosting) Validate() error {
	for _, v := range p.scalars() {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: empty field", ErrInvalidPosting)
		}
	}
	if len(p.Requirements) == 0 || len(p.Other) == 0 {
		return fmt.Errorf("%w: empty list field", ErrInvalidPosting)
	}

	if p.IsFalsePositive() {
		return nil
	}

	for _, v := range p.scalars() {
		if v == FalsePositive {
			return fmt.Errorf("%w: mixed %q sentinel", ErrInvalidPosting, FalsePositive)
		}
	}
	for _, list := range [][]string{p.Requirements, p.Other} {
		for _, v := range list {
			if v == FalsePositive {
				return fmt.Errorf("%w: mixed %q sentinel", ErrInvalidPosting, FalsePositive)
			}
		}
	}
	return nil
}

// 交给摘要模块的一次运行结果
type Digest struct {
	Date     time.Time
	Postings []JobPosting
	Outcome  Outcome
}

func NewDigest(date time.Time, postings []JobPosting) Digest {
	outcome := OutcomeFound
	if len(postings) == 0 {
		outcome = OutcomeNothingFound
	}
	return Digest{Date: date, Postings: postings, Outcome: outcome}
}

func (d Digest) Empty() bool {
	return d.Outcome == OutcomeNothingFound
}

// 一次运行各阶段的计数
type RunStats struct {
	Listed         int `json:"listed"`          // 邮箱返回的候选数
	Filtered       int `json:"filtered"`        // 被本地规则过滤掉的数量
	Triaged        int `json:"triaged"`         // 粗筛后保留的数量
	Fetched        int `json:"fetched"`         // 成功取回正文的数量
	FetchFailures  int `json:"fetch_failures"`  // 取正文失败的数量
	EmptyBodies    int `json:"empty_bodies"`    // 正文为空、跳过模型调用的数量
	Extracted      int `json:"extracted"`       // 进入摘要的招聘信息数
	FalsePositives int `json:"false_positives"` // 模型判定为误报的数量
	Rejected       int `json:"rejected"`        // 回复无效或调用失败而丢弃的数量
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func cleanText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

func normalizeField(v string) string {
	v = cleanText(v)
	if v == "" {
		return NotFound
	}
	return v
}

func normalizeList(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v = cleanText(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{NotFound}
	}
	if isSentinelList(out, NotFound) {
		return []string{NotFound}
	}
	return out
}

// 非空且每一项都是占位值
func isSentinelList(list []string, sentinel string) bool {
	if len(list) == 0 {
		return false
	}
	for _, v := range list {
		if v != sentinel {
			return false
		}
	}
	return true
}
