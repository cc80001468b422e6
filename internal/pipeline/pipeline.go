package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/YKarmar/JobDigest/internal/mailbox"
	"github.com/YKarmar/JobDigest/internal/mimetext"
	"github.com/YKarmar/JobDigest/internal/types"
)

type Triager interface {
	Triage(ctx context.Context, candidates []types.Candidate) ([]string, error)
}

type Extractor interface {
	Extract(ctx context.Context, body string) (*types.JobPosting, bool)
}

// 一次运行的结果
type Report struct {
	RunID    string
	Digest   types.Digest
	Stats    types.RunStats
	Started  time.Time
	Finished time.Time
}

func (r *Report) Latency() time.Duration {
	return r.Finished.Sub(r.Started)
}

type Pipeline struct {
	mailbox   mailbox.Mailbox
	filter    mailbox.Filter
	triager   Triager
	extractor Extractor
	now       func() time.Time
}

func New(mb mailbox.Mailbox, filter mailbox.Filter, triager Triager, extractor Extractor) *Pipeline {
	return &Pipeline{
		mailbox:   mb,
		filter:    filter,
		triager:   triager,
		extractor: extractor,
		now:       time.Now,
	}
}

// Run 扫描 since 之后的邮件。report 永不为 nil；err 非空时不能投递摘要
func (p *Pipeline) Run(ctx context.Context, since time.Time) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Started: p.now()}
	defer func() { report.Finished = p.now() }()

	logf := func(format string, args ...any) {
		log.Printf("[%s] "+format, append([]any{report.RunID[:8]}, args...)...)
	}

	candidates, err := p.mailbox.ListRecent(ctx, since)
	if err != nil {
		return report, fmt.Errorf("list candidates: %w", err)
	}
	report.Stats.Listed = len(candidates)

	kept := p.filter.Apply(candidates)
	report.Stats.Filtered = len(candidates) - len(kept)
	logf("listed %d messages since %s, %d after filters", len(candidates), since.Format("2006-01-02"), len(kept))

	ids, err := p.triager.Triage(ctx, kept)
	if err != nil {
		return report, fmt.Errorf("triage: %w", err)
	}
	report.Stats.Triaged = len(ids)
	logf("triage kept %d of %d", len(ids), len(kept))

	postings := []types.JobPosting{}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("run cancelled after %d of %d candidates: %w", i, len(ids), err)
		}

		tree, err := p.mailbox.FetchTree(ctx, id)
		if err != nil {
			logf("fetch %s failed: %v", id, err)
			report.Stats.FetchFailures++
			continue
		}
		report.Stats.Fetched++

		body := mimetext.Extract(tree)
		if body == "" {
			report.Stats.EmptyBodies++
			continue
		}

		posting, ok := p.extractor.Extract(ctx, body)
		if !ok {
			logf("no valid posting for %s", id)
			report.Stats.Rejected++
			continue
		}
		if posting.IsFalsePositive() {
			logf("%s is a false positive", id)
			report.Stats.FalsePositives++
			continue
		}

		postings = append(postings, *posting)
		report.Stats.Extracted++
		fmt.Printf("发现招聘信息 %d/%d: %s - %s\n", i+1, len(ids), posting.CompanyName, posting.Position)
	}

	report.Digest = types.NewDigest(p.now(), postings)
	return report, nil
}
