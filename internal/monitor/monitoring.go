package monitor

import (
	"time"

	"github.com/posthog/posthog-go"

	"github.com/YKarmar/JobDigest/internal/types"
)

const eventRunFinished = "digest_run"

// 一次运行结束时上报的数据
type RunEvent struct {
	RunID      string
	Outcome    types.Outcome
	Stats      types.RunStats
	Latency    time.Duration
	Failed     bool
	FailReason string
}

type Monitor interface {
	RunFinished(e RunEvent) error
}

type PosthogMonitor struct {
	ApiKey   string
	Endpoint string
}

func NewPosthogMonitor(apiKey, endpoint string) *PosthogMonitor {
	return &PosthogMonitor{
		ApiKey:   apiKey,
		Endpoint: endpoint,
	}
}

// 没有配置API key时返回空实现
func New(apiKey, endpoint string) Monitor {
	if apiKey == "" {
		return Noop{}
	}
	return NewPosthogMonitor(apiKey, endpoint)
}

func (p *PosthogMonitor) GetClient() (posthog.Client, error) {
	return posthog.NewWithConfig(p.ApiKey, posthog.Config{Endpoint: p.Endpoint})
}

// 上报一次运行事件，返回前关闭客户端以发送
func (p *PosthogMonitor) RunFinished(e RunEvent) error {
	client, err := p.GetClient()
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Enqueue(posthog.Capture{
		DistinctId: e.RunID,
		Event:      eventRunFinished,
		Properties: posthog.NewProperties().
			Set("outcome", string(e.Outcome)).
			Set("latency", e.Latency.Milliseconds()).
			Set("isError", e.Failed).
			Set("failReason", e.FailReason).
			Set("listed", e.Stats.Listed).
			Set("filtered", e.Stats.Filtered).
			Set("triaged", e.Stats.Triaged).
			Set("fetched", e.Stats.Fetched).
			Set("fetchFailures", e.Stats.FetchFailures).
			Set("emptyBodies", e.Stats.EmptyBodies).
			Set("extracted", e.Stats.Extracted).
			Set("falsePositives", e.Stats.FalsePositives).
			Set("rejected", e.Stats.Rejected),
	})
}

// 未配置PostHog时使用
type Noop struct{}

func (Noop) RunFinished(RunEvent) error { return nil }
