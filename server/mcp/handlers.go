package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kasuganosora/contentmcp/pkg/ingest"
	"github.com/kasuganosora/contentmcp/pkg/logging"
	"github.com/kasuganosora/contentmcp/pkg/security"
)

type contextKey string

const (
	ctxKeyMCPRequest contextKey = "mcp_request"
	ctxKeyTraceID    contextKey = "mcp_trace_id"
)

// ToolDeps holds shared dependencies for MCP tool handlers
type ToolDeps struct {
	Ingestor    *ingest.Ingestor
	AuditLogger *security.AuditLogger
	Logger      logging.Logger
	// Timeout bounds a single parse_spreadsheet call; zero means no limit.
	Timeout time.Duration

	validators map[string]*argValidator
}

// NewToolDeps compiles the input schema of every tool and returns handler dependencies.
func NewToolDeps(ingestor *ingest.Ingestor, auditLogger *security.AuditLogger, logger logging.Logger, timeout time.Duration) (*ToolDeps, error) {
	if ingestor == nil {
		ingestor = ingest.NewIngestor(nil)
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	validators := make(map[string]*argValidator)
	for _, tool := range Tools() {
		v, err := newArgValidator(tool)
		if err != nil {
			return nil, err
		}
		validators[tool.Name] = v
	}

	return &ToolDeps{
		Ingestor:    ingestor,
		AuditLogger: auditLogger,
		Logger:      logger,
		Timeout:     timeout,
		validators:  validators,
	}, nil
}

// HandleParseSpreadsheet ingests a workbook or delimited file and returns its rows as JSON.
func (d *ToolDeps) HandleParseSpreadsheet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	args := request.GetArguments()

	var req ParseSpreadsheetRequest
	if result := d.validateAndBind(ctx, ToolParseSpreadsheet, args, &req, start); result != nil {
		return result, nil
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	src := ingest.SourceFile{
		Path:  req.FilePath,
		Kind:  ingest.FileKind(req.FileType),
		Sheet: req.Sheet,
	}
	rows, err := d.Ingestor.Ingest(ctx, src)

	elapsed := time.Since(start).Milliseconds()
	if d.AuditLogger != nil {
		d.AuditLogger.LogIngest(getTraceID(ctx), req.FilePath, req.FileType, len(rows), elapsed, err)
	}
	if err != nil {
		d.logToolCall(ctx, ToolParseSpreadsheet, args, elapsed, false)
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		d.logToolCall(ctx, ToolParseSpreadsheet, args, elapsed, false)
		return mcp.NewToolResultError(fmt.Sprintf("Error parsing file: %v", err)), nil
	}

	d.logToolCall(ctx, ToolParseSpreadsheet, args, elapsed, true)
	return mcp.NewToolResultText(string(data)), nil
}

// HandleCreateTemplate validates create_template arguments; rendering is not provided.
func (d *ToolDeps) HandleCreateTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req CreateTemplateRequest
	return d.notImplemented(ctx, ToolCreateTemplate, request, &req), nil
}

// HandleGenerateContent validates generate_content arguments; generation is not provided.
func (d *ToolDeps) HandleGenerateContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req GenerateContentRequest
	return d.notImplemented(ctx, ToolGenerateContent, request, &req), nil
}

// HandleExportDesigns validates export_designs arguments; export is not provided.
func (d *ToolDeps) HandleExportDesigns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req ExportDesignsRequest
	return d.notImplemented(ctx, ToolExportDesigns, request, &req), nil
}

// HandleSchedulePosts validates schedule_posts arguments; scheduling is not provided.
func (d *ToolDeps) HandleSchedulePosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req SchedulePostsRequest
	return d.notImplemented(ctx, ToolSchedulePosts, request, &req), nil
}

func (d *ToolDeps) notImplemented(ctx context.Context, toolName string, request mcp.CallToolRequest, target any) *mcp.CallToolResult {
	start := time.Now()
	args := request.GetArguments()
	if result := d.validateAndBind(ctx, toolName, args, target, start); result != nil {
		return result
	}

	d.Logger.Debug("[MCP] %s called, not implemented", toolName)
	d.logToolCall(ctx, toolName, args, time.Since(start).Milliseconds(), false)
	return mcp.NewToolResultError(fmt.Sprintf("%s is not implemented", toolName))
}

// validateAndBind returns a tool error result when the arguments are rejected.
func (d *ToolDeps) validateAndBind(ctx context.Context, toolName string, args map[string]any, target any, start time.Time) *mcp.CallToolResult {
	err := d.validate(toolName, args)
	if err == nil {
		err = bindArguments(args, target)
	}
	if err == nil {
		return nil
	}

	d.Logger.Warn("[MCP] %s rejected: %v", toolName, err)
	if d.AuditLogger != nil {
		d.AuditLogger.LogValidation(getTraceID(ctx), toolName, err.Error())
	}
	d.logToolCall(ctx, toolName, args, time.Since(start).Milliseconds(), false)
	return mcp.NewToolResultError(err.Error())
}

func (d *ToolDeps) validate(toolName string, args map[string]any) error {
	v, ok := d.validators[toolName]
	if !ok {
		return fmt.Errorf("%w: unknown tool %s", ErrInvalidArguments, toolName)
	}
	return v.Validate(args)
}

func (d *ToolDeps) logToolCall(ctx context.Context, toolName string, args map[string]interface{}, duration int64, success bool) {
	if d.AuditLogger != nil {
		d.AuditLogger.LogMCPToolCall(getTraceID(ctx), "", getClientIP(ctx), toolName, args, duration, success)
	}
}

func getTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(ctxKeyTraceID).(string)
	return traceID
}

// getClientIP extracts the client IP from the HTTP request stored in context.
func getClientIP(ctx context.Context) string {
	r, ok := ctx.Value(ctxKeyMCPRequest).(*http.Request)
	if !ok || r == nil {
		return ""
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
