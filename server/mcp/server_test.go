package mcp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kasuganosora/contentmcp/pkg/config"
	"github.com/kasuganosora/contentmcp/pkg/ingest"
	"github.com/kasuganosora/contentmcp/pkg/security"
)

func setupTestDeps(t *testing.T) (*ToolDeps, string) {
	t.Helper()
	root := t.TempDir()
	deps, err := NewToolDeps(ingest.NewIngestor(ingest.NewOSFileReader(root)), security.NewAuditLogger(100), nil, 0)
	require.NoError(t, err)
	return deps, root
}

func makeCallToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var arguments interface{}
	if args != nil {
		arguments = map[string]any(args)
	}
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: arguments,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	textContent, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return textContent.Text
}

func TestHandleParseSpreadsheet_CSV(t *testing.T) {
	deps, root := setupTestDeps(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "products.csv"),
		[]byte("name,price,active\nMug,12.5,true\nCap,8,false\n"), 0644))

	req := makeCallToolRequest(map[string]interface{}{
		"filePath": "products.csv",
		"fileType": "csv",
	})
	result, err := deps.HandleParseSpreadsheet(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Mug", rows[0]["name"])
	assert.Equal(t, 12.5, rows[0]["price"])
	assert.Equal(t, true, rows[0]["active"])
	assert.Equal(t, float64(8), rows[1]["price"])
}

func TestHandleParseSpreadsheet_Workbook(t *testing.T) {
	deps, root := setupTestDeps(t)

	f := excelize.NewFile()
	_, err := f.NewSheet("Posts")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Posts", "A1", "title"))
	require.NoError(t, f.SetCellValue("Posts", "B1", "likes"))
	require.NoError(t, f.SetCellValue("Posts", "A2", "Launch"))
	require.NoError(t, f.SetCellValue("Posts", "B2", 42))
	require.NoError(t, f.SaveAs(filepath.Join(root, "posts.xlsx")))
	require.NoError(t, f.Close())

	req := makeCallToolRequest(map[string]interface{}{
		"filePath": "posts.xlsx",
		"fileType": "excel",
		"sheet":    "Posts",
	})
	result, err := deps.HandleParseSpreadsheet(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Launch", rows[0]["title"])
	assert.Equal(t, float64(42), rows[0]["likes"])

	t.Run("sheet not found", func(t *testing.T) {
		req := makeCallToolRequest(map[string]interface{}{
			"filePath": "posts.xlsx",
			"fileType": "excel",
			"sheet":    "Missing",
		})
		result, err := deps.HandleParseSpreadsheet(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "Error parsing file: sheet not found: Missing", resultText(t, result))
	})
}

func TestHandleParseSpreadsheet_MissingFile(t *testing.T) {
	deps, _ := setupTestDeps(t)

	req := makeCallToolRequest(map[string]interface{}{
		"filePath": "nope.csv",
		"fileType": "csv",
	})
	result, err := deps.HandleParseSpreadsheet(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Error parsing file:")

	events := deps.AuditLogger.GetEventsByType(security.EventTypeIngest)
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.Equal(t, "nope.csv", events[0].Path)
}

func TestHandleParseSpreadsheet_TimeoutBoundsWorkbook(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "title"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Launch"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// slow reader that ignores ctx
	reader := ingest.FileReaderFunc(func(ctx context.Context, path string) ([]byte, error) {
		time.Sleep(20 * time.Millisecond)
		return buf.Bytes(), nil
	})
	deps, err := NewToolDeps(ingest.NewIngestor(reader), security.NewAuditLogger(100), nil, time.Millisecond)
	require.NoError(t, err)

	req := makeCallToolRequest(map[string]interface{}{"filePath": "book.xlsx", "fileType": "excel"})
	result, err := deps.HandleParseSpreadsheet(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error parsing file: context deadline exceeded", resultText(t, result))
}

func TestHandleParseSpreadsheet_InvalidArguments(t *testing.T) {
	reads := 0
	reader := ingest.FileReaderFunc(func(ctx context.Context, path string) ([]byte, error) {
		reads++
		return []byte("a\n1\n"), nil
	})
	deps, err := NewToolDeps(ingest.NewIngestor(reader), security.NewAuditLogger(100), nil, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{name: "nil arguments", args: nil},
		{name: "missing filePath", args: map[string]interface{}{"fileType": "csv"}},
		{name: "missing fileType", args: map[string]interface{}{"filePath": "a.csv"}},
		{name: "unknown fileType", args: map[string]interface{}{"filePath": "a.json", "fileType": "json"}},
		{name: "wrong type", args: map[string]interface{}{"filePath": 42, "fileType": "csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := deps.HandleParseSpreadsheet(context.Background(), makeCallToolRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), "invalid arguments")
		})
	}

	assert.Zero(t, reads)
	assert.Len(t, deps.AuditLogger.GetEventsByType(security.EventTypeValidation), len(tests))
}

func TestStubTools(t *testing.T) {
	deps, _ := setupTestDeps(t)

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		valid   map[string]interface{}
		invalid map[string]interface{}
	}{
		{
			name:    ToolCreateTemplate,
			handler: deps.HandleCreateTemplate,
			valid: map[string]interface{}{
				"type": "social",
				"elements": []interface{}{
					map[string]interface{}{"type": "text", "properties": map[string]interface{}{"content": "{{name}}"}},
				},
			},
			invalid: map[string]interface{}{"type": "poster", "elements": []interface{}{}},
		},
		{
			name:    ToolGenerateContent,
			handler: deps.HandleGenerateContent,
			valid: map[string]interface{}{
				"templateId":   "tpl-1",
				"data":         []interface{}{map[string]interface{}{"name": "Mug"}},
				"outputFormat": "png",
			},
			invalid: map[string]interface{}{"templateId": "tpl-1", "data": []interface{}{}, "outputFormat": "gif"},
		},
		{
			name:    ToolExportDesigns,
			handler: deps.HandleExportDesigns,
			valid: map[string]interface{}{
				"designs":   []interface{}{"d1", "d2"},
				"format":    "pdf",
				"outputDir": "out",
			},
			invalid: map[string]interface{}{"designs": []interface{}{"d1"}, "format": "pdf"},
		},
		{
			name:    ToolSchedulePosts,
			handler: deps.HandleSchedulePosts,
			valid: map[string]interface{}{
				"designs":   []interface{}{"d1"},
				"platforms": []interface{}{"instagram", "linkedin"},
				"schedule":  map[string]interface{}{"startDate": "2024-05-01T09:00:00Z", "frequency": "weekly"},
			},
			invalid: map[string]interface{}{
				"designs":   []interface{}{"d1"},
				"platforms": []interface{}{"myspace"},
				"schedule":  map[string]interface{}{"frequency": "weekly"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(context.Background(), makeCallToolRequest(tt.valid))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.name+" is not implemented", resultText(t, result))

			result, err = tt.handler(context.Background(), makeCallToolRequest(tt.invalid))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), "invalid arguments")
		})
	}

	assert.Len(t, deps.AuditLogger.GetEventsByType(security.EventTypeMCPToolCall), 2*len(tests))
}

func TestAuditRecordsTraceAndClientIP(t *testing.T) {
	deps, root := setupTestDeps(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.csv"), []byte("x\n1\n"), 0644))

	r, _ := http.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-Trace-Id", "trace-abc")
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	ctx := httpContextFunc(context.Background(), r)

	req := makeCallToolRequest(map[string]interface{}{"filePath": "a.csv", "fileType": "csv"})
	result, err := deps.HandleParseSpreadsheet(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	events := deps.AuditLogger.GetEventsByTraceID("trace-abc")
	require.Len(t, events, 2)
	assert.Equal(t, security.EventTypeIngest, events[0].EventType)
	assert.Equal(t, security.EventTypeMCPToolCall, events[1].EventType)
	assert.Equal(t, "203.0.113.50", events[1].Metadata["ip"])
	assert.True(t, events[1].Success)
}

func TestHTTPContextFunc_GeneratesTraceID(t *testing.T) {
	r, _ := http.NewRequest("POST", "/mcp", nil)
	ctx := httpContextFunc(context.Background(), r)

	assert.NotEmpty(t, getTraceID(ctx))
	assert.Same(t, r, ctx.Value(ctxKeyMCPRequest))
}

func TestGetClientIP_FromContext(t *testing.T) {
	t.Run("no request in context", func(t *testing.T) {
		ip := getClientIP(context.Background())
		assert.Equal(t, "", ip)
	})

	t.Run("X-Forwarded-For", func(t *testing.T) {
		r, _ := http.NewRequest("GET", "/", nil)
		r.Header.Set("X-Forwarded-For", "10.1.2.3, 10.4.5.6")
		ctx := context.WithValue(context.Background(), ctxKeyMCPRequest, r)
		assert.Equal(t, "10.1.2.3", getClientIP(ctx))
	})

	t.Run("X-Real-IP", func(t *testing.T) {
		r, _ := http.NewRequest("GET", "/", nil)
		r.Header.Set("X-Real-IP", "172.16.0.1")
		ctx := context.WithValue(context.Background(), ctxKeyMCPRequest, r)
		assert.Equal(t, "172.16.0.1", getClientIP(ctx))
	})

	t.Run("RemoteAddr with port", func(t *testing.T) {
		r, _ := http.NewRequest("GET", "/", nil)
		r.RemoteAddr = "192.168.1.100:54321"
		ctx := context.WithValue(context.Background(), ctxKeyMCPRequest, r)
		assert.Equal(t, "192.168.1.100", getClientIP(ctx))
	})
}

func TestNewServer_ListsTools(t *testing.T) {
	deps, _ := setupTestDeps(t)
	s := NewServer(nil, deps, nil)

	msg := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := s.MCPServer().HandleMessage(context.Background(), msg)

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	names := make([]string, 0, len(decoded.Result.Tools))
	for _, tool := range decoded.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolParseSpreadsheet, ToolCreateTemplate, ToolGenerateContent, ToolExportDesigns, ToolSchedulePosts,
	}, names)
}

func TestNewServer_CallTool(t *testing.T) {
	deps, root := setupTestDeps(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.csv"), []byte("city\nOslo\n"), 0644))
	s := NewServer(config.DefaultConfig(), deps, nil)

	msg := []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"parse_spreadsheet","arguments":{"filePath":"a.csv","fileType":"csv"}}}`)
	resp := s.MCPServer().HandleMessage(context.Background(), msg)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Oslo")
}

func TestServerStart_UnsupportedTransport(t *testing.T) {
	deps, _ := setupTestDeps(t)
	cfg := config.DefaultConfig()
	cfg.MCP.Transport = "carrier-pigeon"

	err := NewServer(cfg, deps, nil).Start(context.Background())
	assert.ErrorContains(t, err, "unsupported transport")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func portOpen(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func TestServerStart_HTTPShutdown(t *testing.T) {
	deps, _ := setupTestDeps(t)
	cfg := config.DefaultConfig()
	cfg.MCP.Host = "127.0.0.1"
	cfg.MCP.Port = freePort(t)
	addr := cfg.GetListenAddress()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(cfg, deps, nil).Start(ctx)
	}()

	require.Eventually(t, func() bool { return portOpen(addr) }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.False(t, portOpen(addr))
}

func TestServerStart_HTTPCanceledBeforeStart(t *testing.T) {
	deps, _ := setupTestDeps(t)
	cfg := config.DefaultConfig()
	cfg.MCP.Host = "127.0.0.1"

	for i := 0; i < 10; i++ {
		cfg.MCP.Port = freePort(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, NewServer(cfg, deps, nil).Start(ctx))
		assert.False(t, portOpen(cfg.GetListenAddress()))
	}
}

func TestServerStart_HTTPCanceledWhileStarting(t *testing.T) {
	deps, _ := setupTestDeps(t)
	cfg := config.DefaultConfig()
	cfg.MCP.Host = "127.0.0.1"

	for i := 0; i < 10; i++ {
		cfg.MCP.Port = freePort(t)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- NewServer(cfg, deps, nil).Start(ctx)
		}()
		cancel()

		require.NoError(t, <-done)
		assert.False(t, portOpen(cfg.GetListenAddress()))
	}
}

func TestServerStart_HTTPServesEndpoint(t *testing.T) {
	deps, _ := setupTestDeps(t)
	cfg := config.DefaultConfig()
	cfg.MCP.Host = "127.0.0.1"
	cfg.MCP.Port = freePort(t)
	addr := cfg.GetListenAddress()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(cfg, deps, nil).Start(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool { return portOpen(addr) }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/other")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
