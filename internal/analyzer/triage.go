package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/YKarmar/JobDigest/internal/llm"
	"github.com/YKarmar/JobDigest/internal/types"
)

// 模型调用失败，不能当成没有匹配
var ErrTriageUnavailable = errors.New("triage unavailable")

// 模型回复中ID两侧可能带的标点
const idCutset = ",;[]()'\"`"

// 按主题粗筛候选邮件
type Triager struct {
	gen llm.Generator
}

func NewTriager(gen llm.Generator) *Triager {
	return &Triager{gen: gen}
}

// 一次请求粗筛全部邮件，返回保留的ID；空切片表示全部排除
func (t *Triager) Triage(ctx context.Context, candidates []types.Candidate) ([]string, error) {
	known := make(map[string]bool, len(candidates))
	var (
		lines       []string
		passThrough []string
	)
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if known[c.ID] {
			continue
		}
		known[c.ID] = true

		// 含空白的ID无法在回复里还原，直接保留
		if strings.IndexFunc(c.ID, unicode.IsSpace) >= 0 {
			passThrough = append(passThrough, c.ID)
			continue
		}
		lines = append(lines, c.ID+"\t"+singleLine(c.Subject))
	}

	if len(lines) == 0 {
		return append([]string{}, passThrough...), nil
	}

	reply, err := t.gen.Generate(ctx, llm.Request{
		Instructions: triageInstructions,
		Input:        strings.Join(lines, "\n"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTriageUnavailable, err)
	}

	kept := parseIDs(reply, known)
	return append(kept, passThrough...), nil
}

// 解析空白分隔的ID列表，只保留候选集合中的ID并去重
func parseIDs(reply string, known map[string]bool) []string {
	ids := []string{}
	seen := make(map[string]bool)
	for _, token := range strings.Fields(reply) {
		id := strings.Trim(token, idCutset)
		if id == "" || seen[id] {
			continue
		}
		if !known[id] {
			log.Printf("triage: ignoring unknown id %q in model reply", id)
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
