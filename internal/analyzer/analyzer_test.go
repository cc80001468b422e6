package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YKarmar/JobDigest/internal/llm"
	"github.com/YKarmar/JobDigest/internal/types"
)

// 按顺序返回预设回复的假模型
type scriptedGenerator struct {
	replies  []string
	err      error
	requests []llm.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

var exampleCandidates = []types.Candidate{
	{ID: "195d64s7h1eb0ac3", Subject: "Invitation to Workshop on Product Design and Development by Prof. XYZ"},
	{ID: "195h4dhefd18dbf2", Subject: "Fwd: UPDATE: JPMorganChase | Online Test Instructions - Summer Internship 2026"},
	{ID: "195d5b048cc11157", Subject: "Fwd: Lost Book Found"},
	{ID: "1912186480d8d4av", Subject: "@ UG 6th Sem and above /PG : Summer internship at NIT, Warangal, Telangana"},
}

func TestTriage_KeepsHiringIDs(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"195h4dhefd18dbf2 1912186480d8d4av\n"}}
	ids, err := NewTriager(gen).Triage(context.Background(), exampleCandidates)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"195h4dhefd18dbf2", "1912186480d8d4av"}, ids)
	assert.NotContains(t, ids, "195d64s7h1eb0ac3")
	assert.NotContains(t, ids, "195d5b048cc11157")

	require.Len(t, gen.requests, 1, "all candidates go in a single request")
	req := gen.requests[0]
	assert.Nil(t, req.Schema)
	assert.Contains(t, req.Instructions, "lost and found")
	assert.Contains(t, req.Input, "195d5b048cc11157\tFwd: Lost Book Found")
	assert.Len(t, strings.Split(req.Input, "\n"), len(exampleCandidates))
}

func TestTriage_ParsesNoisyReply(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{`["195h4dhefd18dbf2", "1912186480d8d4av", "195h4dhefd18dbf2", "made-up-id"]`}}
	ids, err := NewTriager(gen).Triage(context.Background(), exampleCandidates)

	require.NoError(t, err)
	assert.Equal(t, []string{"195h4dhefd18dbf2", "1912186480d8d4av"}, ids)
}

func TestTriage_EmptyReplyIsNotAFailure(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"  \n"}}
	ids, err := NewTriager(gen).Triage(context.Background(), exampleCandidates)

	require.NoError(t, err)
	require.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestTriage_TransportFailure(t *testing.T) {
	gen := &scriptedGenerator{err: &llm.APIError{Provider: "openai", StatusCode: 503, Body: "down"}}
	ids, err := NewTriager(gen).Triage(context.Background(), exampleCandidates)

	require.Error(t, err)
	assert.Nil(t, ids)
	assert.True(t, errors.Is(err, ErrTriageUnavailable))
	assert.True(t, llm.IsAPIError(err))
}

func TestTriage_NoCandidates(t *testing.T) {
	gen := &scriptedGenerator{}
	ids, err := NewTriager(gen).Triage(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, gen.requests, "nothing to classify means no model call")
}

func TestTriage_InvalidCandidate(t *testing.T) {
	gen := &scriptedGenerator{}
	_, err := NewTriager(gen).Triage(context.Background(), []types.Candidate{{ID: " ", Subject: "hi"}})

	assert.ErrorIs(t, err, types.ErrInvalidCandidate)
	assert.Empty(t, gen.requests)
}

func TestTriage_WhitespaceIDPassesThrough(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{""}}
	candidates := []types.Candidate{
		{ID: "INBOX 42", Subject: "Hackathon this weekend"},
		{ID: "abc", Subject: "Seminar"},
	}
	ids, err := NewTriager(gen).Triage(context.Background(), candidates)

	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX 42"}, ids)
	require.Len(t, gen.requests, 1)
	assert.NotContains(t, gen.requests[0].Input, "INBOX 42")
}

func TestTriage_SubjectNewlinesFlattened(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"a"}}
	_, err := NewTriager(gen).Triage(context.Background(), []types.Candidate{{ID: "a", Subject: "Summer\r\n  internship"}})

	require.NoError(t, err)
	assert.Equal(t, "a\tSummer internship", gen.requests[0].Input)
}

const postingReply = `{
  "company_name": "JPMorganChase",
  "position": "Summer Intern",
  "application_link": "https://careers.jpmorgan.com/apply",
  "application_deadline": "Not Found",
  "requirements": ["Python", "CGPA > 8"],
  "other": ["Stipend = $100"]
}`

func TestExtract_Posting(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{postingReply}}
	posting, ok := NewExtractor(gen, 0).Extract(context.Background(), "JPMorganChase is hiring summer interns. Apply at ...")

	require.True(t, ok)
	assert.Equal(t, "JPMorganChase", posting.CompanyName)
	assert.Equal(t, "Summer Intern", posting.Position)
	assert.Equal(t, types.NotFound, posting.ApplicationDeadline)
	assert.Equal(t, []string{"Python", "CGPA > 8"}, posting.Requirements)
	assert.False(t, posting.IsFalsePositive())

	require.Len(t, gen.requests, 1)
	assert.Equal(t, jobPostingSchema, gen.requests[0].Schema)
}

func TestExtract_FalsePositive(t *testing.T) {
	reply := `{"company_name":"False Positive","position":"False Positive","application_link":"False Positive",
"application_deadline":"False Positive","requirements":["False Positive"],"other":["False Positive"]}`
	gen := &scriptedGenerator{replies: []string{reply}}
	posting, ok := NewExtractor(gen, 0).Extract(context.Background(), "Campus newsletter: the cultural fest starts Friday.")

	require.True(t, ok)
	assert.True(t, posting.IsFalsePositive())
	assert.Equal(t, types.FalsePositivePosting(), *posting)
}

func TestExtract_CodeFence(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"```json\n" + postingReply + "\n```"}}
	posting, ok := NewExtractor(gen, 0).Extract(context.Background(), "body")

	require.True(t, ok)
	assert.Equal(t, "JPMorganChase", posting.CompanyName)
}

func TestExtract_EmptyBodySkipsModel(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{postingReply}}
	posting, ok := NewExtractor(gen, 0).Extract(context.Background(), " \n\t")

	assert.False(t, ok)
	assert.Nil(t, posting)
	assert.Empty(t, gen.requests)
}

func TestExtract_TransportFailure(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("connection reset")}
	posting, ok := NewExtractor(gen, 0).Extract(context.Background(), "body")

	assert.False(t, ok)
	assert.Nil(t, posting)
}

func TestExtract_ServiceError(t *testing.T) {
	gen := &scriptedGenerator{err: &llm.APIError{Provider: llm.ProviderOpenAI, StatusCode: 500, Body: "boom"}}
	posting, ok := NewExtractor(gen, 0).Extract(context.Background(), "body")

	assert.False(t, ok)
	assert.Nil(t, posting)
}

func TestExtract_TruncatesBody(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{postingReply}}
	_, ok := NewExtractor(gen, 5).Extract(context.Background(), "héllo world")

	require.True(t, ok)
	assert.Equal(t, "héllo...", gen.requests[0].Input)
}

func TestParsePosting_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "Sorry, I cannot help with that."},
		{"truncated", `{"company_name": "ABC", "position": `},
		{"missing key", `{"company_name":"A","position":"B","application_link":"C","application_deadline":"D","requirements":["E"]}`},
		{"extra key", `{"company_name":"A","position":"B","application_link":"C","application_deadline":"D","requirements":["E"],"other":["F"],"salary":"1"}`},
		{"wrong scalar type", `{"company_name":1,"position":"B","application_link":"C","application_deadline":"D","requirements":["E"],"other":["F"]}`},
		{"list as string", `{"company_name":"A","position":"B","application_link":"C","application_deadline":"D","requirements":"E","other":["F"]}`},
		{"null list", `{"company_name":"A","position":"B","application_link":"C","application_deadline":"D","requirements":null,"other":["F"]}`},
		{"null list entry", `{"company_name":"A","position":"B","application_link":"C","application_deadline":"D","requirements":[null],"other":["F"]}`},
		{"null among entries", `{"company_name":"A","position":"B","application_link":"C","application_deadline":"D","requirements":["E"],"other":["F",null]}`},
		{"number in list", `{"company_name":"A","position":"B","application_link":"C","application_deadline":"D","requirements":[3],"other":["F"]}`},
		{"mixed false positive", `{"company_name":"False Positive","position":"Intern","application_link":"C","application_deadline":"D","requirements":["E"],"other":["F"]}`},
		{"false positive in list", `{"company_name":"A","position":"B","application_link":"C","application_deadline":"D","requirements":["False Positive"],"other":["F"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posting, err := ParsePosting(tt.reply)
			assert.Nil(t, posting)
			assert.ErrorIs(t, err, types.ErrInvalidPosting)
		})
	}
}

func TestParsePosting_NormalizesEmptyValues(t *testing.T) {
	posting, err := ParsePosting(`{"company_name":"  ABC  Corp ","position":"","application_link":"x.io","application_deadline":"28/3/2025 9pm","requirements":[],"other":["", "  "]}`)

	require.NoError(t, err)
	assert.Equal(t, "ABC Corp", posting.CompanyName)
	assert.Equal(t, types.NotFound, posting.Position)
	assert.Equal(t, []string{types.NotFound}, posting.Requirements)
	assert.Equal(t, []string{types.NotFound}, posting.Other)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", truncateText("abc", 3))
	assert.Equal(t, "ab...", truncateText("abc", 2))
	assert.Equal(t, "abc", truncateText("abc", 0))
}
