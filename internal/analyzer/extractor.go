package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/YKarmar/JobDigest/internal/llm"
	"github.com/YKarmar/JobDigest/internal/types"
)

// 从正文中提取招聘信息
type Extractor struct {
	gen          llm.Generator
	maxBodyChars int
}

func NewExtractor(gen llm.Generator, maxBodyChars int) *Extractor {
	if maxBodyChars <= 0 {
		maxBodyChars = DefaultMaxBodyChars
	}
	return &Extractor{gen: gen, maxBodyChars: maxBodyChars}
}

// 正文为空、调用失败或回复校验不通过时返回 false，均不重试；统一的误报记录按正常结果返回
func (e *Extractor) Extract(ctx context.Context, body string) (*types.JobPosting, bool) {
	if strings.TrimSpace(body) == "" {
		return nil, false
	}

	reply, err := e.gen.Generate(ctx, llm.Request{
		Instructions: extractInstructions,
		Input:        truncateText(body, e.maxBodyChars),
		Schema:       jobPostingSchema,
	})
	if err != nil {
		if llm.IsAPIError(err) {
			log.Printf("extract: LLM service returned an error: %v", err)
		} else {
			log.Printf("extract: LLM call failed: %v", err)
		}
		return nil, false
	}

	posting, err := ParsePosting(reply)
	if err != nil {
		log.Printf("extract: rejected reply: %v", err)
		return nil, false
	}
	return posting, true
}

// 模型回复的原始结构，用指针区分"缺失"和"空值"
type rawPosting struct {
	CompanyName         *string   `json:"company_name"`
	Position            *string   `json:"position"`
	ApplicationLink     *string   `json:"application_link"`
	ApplicationDeadline *string   `json:"application_deadline"`
	Requirements        *[]*string `json:"requirements"`
	Other               *[]*string `json:"other"`
}

// 解析模型回复：多余字段、缺失字段、null 和类型错误都拒绝
func ParsePosting(reply string) (*types.JobPosting, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(extractJSON(reply))))
	dec.DisallowUnknownFields()

	var raw rawPosting
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: parse JSON response: %w", types.ErrInvalidPosting, err)
	}

	missing := missingKeys(raw)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", types.ErrInvalidPosting, strings.Join(missing, ", "))
	}

	requirements, err := stringList("requirements", *raw.Requirements)
	if err != nil {
		return nil, err
	}
	other, err := stringList("other", *raw.Other)
	if err != nil {
		return nil, err
	}

	posting := types.JobPosting{
		CompanyName:         *raw.CompanyName,
		Position:            *raw.Position,
		ApplicationLink:     *raw.ApplicationLink,
		ApplicationDeadline: *raw.ApplicationDeadline,
		Requirements:        requirements,
		Other:               other,
	}
	posting.Normalize()
	if err := posting.Validate(); err != nil {
		return nil, err
	}
	return &posting, nil
}

func stringList(name string, items []*string) ([]string, error) {
	out := make([]string, 0, len(items))
	for i, v := range items {
		if v == nil {
			return nil, fmt.Errorf("%w: %s[%d] is null", types.ErrInvalidPosting, name, i)
		}
		out = append(out, *v)
	}
	return out, nil
}

func missingKeys(raw rawPosting) []string {
	var missing []string
	if raw.CompanyName == nil {
		missing = append(missing, "company_name")
	}
	if raw.Position == nil {
		missing = append(missing, "position")
	}
	if raw.ApplicationLink == nil {
		missing = append(missing, "application_link")
	}
	if raw.ApplicationDeadline == nil {
		missing = append(missing, "application_deadline")
	}
	if raw.Requirements == nil {
		missing = append(missing, "requirements")
	}
	if raw.Other == nil {
		missing = append(missing, "other")
	}
	return missing
}
