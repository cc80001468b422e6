package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 2000
)

var ErrEmptyResponse = errors.New("no response from LLM")

// LLM客户端配置
type Config struct {
	Provider          string  `json:"provider"`
	APIBase           string  `json:"api_base"`
	APIKey            string  `json:"api_key"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	TimeoutSec        int     `json:"timeout_sec"`
	RequestsPerMinute int     `json:"requests_per_minute"`
}

// 要求模型按给定JSON Schema返回
type Schema struct {
	Name       string
	Definition json.RawMessage
}

// 一次生成请求：系统指令 + 输入 + 可选的输出结构
type Request struct {
	Instructions string
	Input        string
	Schema       *Schema
}

// 流水线对模型服务的唯一需求
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// 服务端返回非2xx状态码
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsAPIError 判断错误链中是否有 APIError
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// 根据配置创建客户端，按需加上限流
func New(cfg Config) (Generator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm.model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	httpClient := &http.Client{Timeout: defaultTimeout}
	if cfg.TimeoutSec > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	var gen Generator
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		gen = NewOpenAIClient(cfg, httpClient)
	case ProviderGemini:
		gen = NewGeminiClient(cfg, httpClient)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	return NewRateLimited(gen, cfg.RequestsPerMinute), nil
}
