// Package mcp exposes usage reports to assistants as Model Context Protocol
// tools over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pario-ai/ccmeter/pkg/budget"
	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/logger"
	"github.com/pario-ai/ccmeter/pkg/models"
)

// Source produces the costed events for one reporting pass.
type Source interface {
	Events(ctx context.Context) ([]models.CostedEvent, cost.Quality, error)
}

// CacheStatter provides cache statistics without coupling to a concrete cache implementation.
type CacheStatter interface {
	Stats() (models.CacheStats, error)
}

// Options fixes the reporting parameters the tools use.
type Options struct {
	Location   *time.Location
	WeekStart  time.Weekday
	Threshold  time.Duration
	TokenLimit int64
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	source   Source
	opts     Options
	cache    CacheStatter
	enforcer *budget.Enforcer
	version  string
	now      func() time.Time
}

// New creates a new MCP Server. cache and enforcer may be nil.
func New(src Source, opts Options, cache CacheStatter, enforcer *budget.Enforcer, version string) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 5 * time.Hour
	}
	return &Server{
		source:   src,
		opts:     opts,
		cache:    cache,
		enforcer: enforcer,
		version:  version,
		now:      time.Now,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(ctx, w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != jsonRPCVersion {
			s.writeResponse(ctx, w, errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be 2.0"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue
		}
		s.writeResponse(ctx, w, resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
			Capabilities:    ServerCapabilities{Tools: map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	ctx = logger.With(ctx, "tool", params.Name)
	logger.Debug(ctx, "tool call")
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(ctx context.Context, w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error(ctx, "mcp marshal failed", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		logger.Error(ctx, "mcp write failed", err)
	}
}
