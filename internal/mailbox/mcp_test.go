package mailbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YKarmar/JobDigest/internal/types"
)

// 按方法名返回结果的假MCP服务
func fakeMCP(t *testing.T, handle func(req MCPRequest) (any, *MCPError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req MCPRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.Jsonrpc)
		assert.NotEmpty(t, req.ID)

		resp := MCPResponse{Jsonrpc: "2.0", ID: req.ID}
		result, mcpErr := handle(req)
		if mcpErr != nil {
			resp.Error = mcpErr
		} else {
			raw, err := json.Marshal(result)
			require.NoError(t, err)
			resp.Result = raw
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMCPMailbox_ListRecent(t *testing.T) {
	since := time.Date(2025, 3, 27, 0, 0, 0, 0, time.UTC)
	srv := fakeMCP(t, func(req MCPRequest) (any, *MCPError) {
		assert.Equal(t, MethodList, req.Method)
		var p ListParams
		require.NoError(t, json.Unmarshal(req.Params, &p))
		assert.True(t, since.Equal(p.Since))
		assert.Equal(t, 50, p.Max)
		return []types.Candidate{{ID: "INBOX:7", Subject: "Internship"}}, nil
	})

	box := NewMCPMailbox(srv.URL, "secret", 50)
	candidates, err := box.ListRecent(context.Background(), since)

	require.NoError(t, err)
	assert.Equal(t, []types.Candidate{{ID: "INBOX:7", Subject: "Internship"}}, candidates)
}

func TestMCPMailbox_FetchTree(t *testing.T) {
	srv := fakeMCP(t, func(req MCPRequest) (any, *MCPError) {
		assert.Equal(t, MethodFetch, req.Method)
		var p FetchParams
		require.NoError(t, json.Unmarshal(req.Params, &p))
		assert.Equal(t, "INBOX:7", p.ID)
		return types.MessagePart{MimeType: "text/plain", Data: "aGk"}, nil
	})

	part, err := NewMCPMailbox(srv.URL, "secret", 0).FetchTree(context.Background(), "INBOX:7")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", part.MimeType)
	assert.Equal(t, "aGk", part.Data)
}

func TestMCPMailbox_Errors(t *testing.T) {
	srv := fakeMCP(t, func(req MCPRequest) (any, *MCPError) {
		return nil, &MCPError{Code: CodeServerError, Message: "imap login failed"}
	})

	_, err := NewMCPMailbox(srv.URL, "secret", 0).FetchTree(context.Background(), "x")
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, CodeServerError, mcpErr.Code)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer down.Close()

	_, err = NewMCPMailbox(down.URL, "", 0).ListRecent(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
