package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/YKarmar/JobDigest/internal/types"
)

// JSON-RPC 方法名
const (
	MethodList  = "email.list"
	MethodFetch = "email.fetch"
)

// JSON-RPC 错误码
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

// MCP协议相关结构体
type MCPRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

type ListParams struct {
	Since time.Time `json:"since"`
	Max   int       `json:"max,omitempty"`
}

type FetchParams struct {
	ID string `json:"id"`
}

// 通过MCP桥接服务读取IMAP邮箱
type MCPMailbox struct {
	endpoint    string
	apiKey      string
	maxMessages int
	httpClient  *http.Client
}

func NewMCPMailbox(endpoint, apiKey string, maxMessages int) *MCPMailbox {
	return &MCPMailbox{
		endpoint:    endpoint,
		apiKey:      apiKey,
		maxMessages: maxMessages,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *MCPMailbox) ListRecent(ctx context.Context, since time.Time) ([]types.Candidate, error) {
	var candidates []types.Candidate
	if err := c.call(ctx, MethodList, ListParams{Since: since, Max: c.maxMessages}, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (c *MCPMailbox) FetchTree(ctx context.Context, id string) (*types.MessagePart, error) {
	var part types.MessagePart
	if err := c.call(ctx, MethodFetch, FetchParams{ID: id}, &part); err != nil {
		return nil, err
	}
	return &part, nil
}

func (c *MCPMailbox) call(ctx context.Context, method string, params, out any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal MCP params: %w", err)
	}

	mcpReq := MCPRequest{
		Jsonrpc: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  rawParams,
	}

	reqBody, err := json.Marshal(mcpReq)
	if err != nil {
		return fmt.Errorf("marshal MCP request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("MCP server error (%d): %s", resp.StatusCode, string(body))
	}

	var mcpResp MCPResponse
	if err := json.NewDecoder(resp.Body).Decode(&mcpResp); err != nil {
		return fmt.Errorf("decode MCP response: %w", err)
	}

	if mcpResp.Error != nil {
		return fmt.Errorf("%s: %w", method, mcpResp.Error)
	}
	if mcpResp.ID != mcpReq.ID {
		return fmt.Errorf("%s: response id %q does not match request %q", method, mcpResp.ID, mcpReq.ID)
	}

	if err := json.Unmarshal(mcpResp.Result, out); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}
