package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/YKarmar/JobDigest/internal/mailbox"
	"github.com/YKarmar/JobDigest/internal/types"
)

// ID 对应的邮件不存在
var ErrNotFound = errors.New("message not found")

// 服务端背后的邮件来源
type Source interface {
	List(ctx context.Context, since time.Time, limit int) ([]types.Candidate, error)
	Fetch(ctx context.Context, id string) (*types.MessagePart, error)
}

// MCP服务器
type Server struct {
	source     Source
	apiKey     string
	maxResults int
}

func New(source Source, apiKey string, maxResults int) *Server {
	return &Server{source: source, apiKey: apiKey, maxResults: maxResults}
}

// 路由：POST /mcp 和 GET /healthz
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.With(s.requireKey).Post("/mcp", s.handleMCP)

	return r
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req mailbox.MCPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, req.ID, mailbox.CodeParseError, "Parse error")
		return
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case mailbox.MethodList:
		var params mailbox.ListParams
		if err := decodeParams(req.Params, &params); err != nil {
			s.sendError(w, req.ID, mailbox.CodeInvalidParams, "invalid list parameters")
			return
		}
		result, err = s.list(r.Context(), params)
	case mailbox.MethodFetch:
		var params mailbox.FetchParams
		if err := decodeParams(req.Params, &params); err != nil || strings.TrimSpace(params.ID) == "" {
			s.sendError(w, req.ID, mailbox.CodeInvalidParams, "invalid fetch parameters")
			return
		}
		result, err = s.source.Fetch(r.Context(), params.ID)
	default:
		s.sendError(w, req.ID, mailbox.CodeMethodNotFound, "Method not found")
		return
	}

	if err != nil {
		log.Printf("%s failed: %v", req.Method, err)
		s.sendError(w, req.ID, mailbox.CodeServerError, err.Error())
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		s.sendError(w, req.ID, mailbox.CodeServerError, "encode result")
		return
	}
	json.NewEncoder(w).Encode(mailbox.MCPResponse{
		Jsonrpc: "2.0",
		ID:      req.ID,
		Result:  raw,
	})
}

func (s *Server) list(ctx context.Context, params mailbox.ListParams) ([]types.Candidate, error) {
	limit := params.Max
	if limit <= 0 || (s.maxResults > 0 && limit > s.maxResults) {
		limit = s.maxResults
	}
	candidates, err := s.source.List(ctx, params.Since, limit)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []types.Candidate{}
	}
	return candidates, nil
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return errors.New("missing params")
	}
	return json.Unmarshal(raw, out)
}

func (s *Server) sendError(w http.ResponseWriter, id string, code int, message string) {
	resp := mailbox.MCPResponse{
		Jsonrpc: "2.0",
		ID:      id,
		Error: &mailbox.MCPError{
			Code:    code,
			Message: message,
		},
	}
	json.NewEncoder(w).Encode(resp)
}
