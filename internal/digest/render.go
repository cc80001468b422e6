package digest

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/YKarmar/JobDigest/internal/types"
)

const dateLayout = "2006-01-02"

const markdownTemplate = `# All intern/job related emails for {{.Date}}
{{if .Empty}}
No relevant emails found for {{.Date}}.
{{else}}{{range $i, $job := .Postings}}
## {{inc $i}}. {{$job.CompanyName}}

**Position:** {{$job.Position}}

**Link:** {{$job.ApplicationLink}}

**Deadline:** {{$job.ApplicationDeadline}}

**Requirements:**

{{range $job.Requirements}}- {{.}}
{{end}}
**Other:**

{{if $job.Other}}{{range $job.Other}}- {{.}}
{{end}}{{else}}None
{{end}}
---
{{end}}{{end}}`

// 渲染结果：纯文本（Markdown）和HTML两种形式
type Rendered struct {
	Subject string
	Text    string
	HTML    string
	Empty   bool
}

type Renderer struct {
	subject string
	tmpl    *template.Template
	md      goldmark.Markdown
	policy  *bluemonday.Policy
}

func NewRenderer(subject string) *Renderer {
	tmpl := template.Must(template.New("digest").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).Parse(markdownTemplate))

	return &Renderer{
		subject: subject,
		tmpl:    tmpl,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		// 字段内容来自模型输出，不可信
		policy: bluemonday.UGCPolicy(),
	}
}

// 生成Markdown正文、清理后的HTML和主题；没有结果时写明未找到
func (r *Renderer) Render(d types.Digest) (*Rendered, error) {
	date := d.Date.Format(dateLayout)

	var text bytes.Buffer
	err := r.tmpl.Execute(&text, struct {
		Date     string
		Empty    bool
		Postings []types.JobPosting
	}{date, d.Empty(), d.Postings})
	if err != nil {
		return nil, fmt.Errorf("render digest template: %w", err)
	}

	var html bytes.Buffer
	if err := r.md.Convert(text.Bytes(), &html); err != nil {
		return nil, fmt.Errorf("convert digest markdown: %w", err)
	}

	return &Rendered{
		Subject: fmt.Sprintf("%s - %s", r.subject, date),
		Text:    text.String(),
		HTML:    string(r.policy.SanitizeBytes(html.Bytes())),
		Empty:   d.Empty(),
	}, nil
}
