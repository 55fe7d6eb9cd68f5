package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kasuganosora/contentmcp/pkg/config"
	"github.com/kasuganosora/contentmcp/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

// Server is the MCP protocol server
type Server struct {
	cfg    *config.Config
	deps   *ToolDeps
	logger logging.Logger
	mcpSrv *mcpserver.MCPServer
}

// NewServer creates a new MCP server with every tool registered
func NewServer(cfg *config.Config, deps *ToolDeps, logger logging.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	handlers := map[string]mcpserver.ToolHandlerFunc{
		ToolParseSpreadsheet: deps.HandleParseSpreadsheet,
		ToolCreateTemplate:   deps.HandleCreateTemplate,
		ToolGenerateContent:  deps.HandleGenerateContent,
		ToolExportDesigns:    deps.HandleExportDesigns,
		ToolSchedulePosts:    deps.HandleSchedulePosts,
	}
	for _, tool := range Tools() {
		mcpSrv.AddTool(tool, handlers[tool.Name])
	}

	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		mcpSrv: mcpSrv,
	}
}

// MCPServer exposes the underlying protocol server
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpSrv
}

// Start serves the configured transport until ctx is done (blocking)
func (s *Server) Start(ctx context.Context) error {
	switch s.cfg.MCP.Transport {
	case config.TransportStdio:
		return s.startStdio(ctx)
	case config.TransportHTTP, "":
		return s.startHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport: %s", s.cfg.MCP.Transport)
	}
}

func (s *Server) startStdio(ctx context.Context) error {
	s.logger.Info("[MCP] 启动 MCP 服务器: stdio")
	stdio := mcpserver.NewStdioServer(s.mcpSrv)
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return context.WithValue(ctx, ctxKeyTraceID, uuid.NewString())
	})
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) startHTTP(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	streamable := mcpserver.NewStreamableHTTPServer(
		s.mcpSrv,
		mcpserver.WithEndpointPath(s.cfg.MCP.EndpointPath),
		mcpserver.WithHTTPContextFunc(httpContextFunc),
	)
	mux := http.NewServeMux()
	mux.Handle(s.cfg.MCP.EndpointPath, streamable)
	httpServer := &http.Server{Handler: mux}

	// 先同步监听，保证关闭时总有可停止的 server
	listener, err := net.Listen("tcp", s.cfg.GetListenAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.GetListenAddress(), err)
	}
	s.logger.Info("[MCP] 启动 MCP 服务器: %s%s", listener.Addr(), s.cfg.MCP.EndpointPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("[MCP] 正在关闭 MCP 服务器")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		// Serve 返回后监听才算真正关闭
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		if shutdownErr != nil {
			return fmt.Errorf("failed to shut down MCP server: %w", shutdownErr)
		}
		return nil
	}
}

// httpContextFunc stores the HTTP request and a trace ID in context for handlers.
func httpContextFunc(ctx context.Context, r *http.Request) context.Context {
	ctx = context.WithValue(ctx, ctxKeyMCPRequest, r)

	traceID := r.Header.Get("X-Trace-Id")
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return context.WithValue(ctx, ctxKeyTraceID, traceID)
}
