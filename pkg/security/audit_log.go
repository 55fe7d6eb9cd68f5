package security

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditLevel 审计级别
type AuditLevel int

const (
	AuditLevelInfo AuditLevel = iota
	AuditLevelWarning
	AuditLevelError
)

// AuditEventType 审计事件类型
type AuditEventType string

const (
	EventTypeMCPToolCall AuditEventType = "mcp_tool_call"
	EventTypeValidation  AuditEventType = "validation"
	EventTypeIngest      AuditEventType = "ingest"
	EventTypeError       AuditEventType = "error"
)

// AuditEvent 审计事件
type AuditEvent struct {
	ID        string                 `json:"id"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Level     AuditLevel             `json:"level"`
	EventType AuditEventType         `json:"event_type"`
	Client    string                 `json:"client,omitempty"`
	Tool      string                 `json:"tool,omitempty"`
	Path      string                 `json:"path,omitempty"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Success   bool                   `json:"success"`
	Duration  int64                  `json:"duration"` // 毫秒
}

// AuditLogger 审计日志记录器（固定大小的环形缓冲区）
type AuditLogger struct {
	bufLock sync.RWMutex
	buffer  []*AuditEvent
	size    int
	index   int
	total   int
}

// NewAuditLogger 创建审计日志记录器
func NewAuditLogger(size int) *AuditLogger {
	if size < 1 {
		size = 1
	}
	return &AuditLogger{
		buffer: make([]*AuditEvent, size),
		size:   size,
	}
}

// Log 记录审计事件
func (al *AuditLogger) Log(event *AuditEvent) {
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	al.bufLock.Lock()
	al.buffer[al.index] = event
	al.index = (al.index + 1) % al.size
	al.total++
	al.bufLock.Unlock()
}

// LogMCPToolCall 记录 MCP 工具调用
func (al *AuditLogger) LogMCPToolCall(traceID, clientName, ip, toolName string, args map[string]interface{}, duration int64, success bool) {
	level := AuditLevelInfo
	if !success {
		level = AuditLevelWarning
	}
	al.Log(&AuditEvent{
		TraceID:   traceID,
		Level:     level,
		EventType: EventTypeMCPToolCall,
		Client:    clientName,
		Tool:      toolName,
		Message:   fmt.Sprintf("MCP tool: %s", toolName),
		Success:   success,
		Duration:  duration,
		Metadata: map[string]interface{}{
			"ip":   ip,
			"args": args,
		},
	})
}

// LogValidation 记录参数校验失败
func (al *AuditLogger) LogValidation(traceID, toolName, message string) {
	al.Log(&AuditEvent{
		TraceID:   traceID,
		Level:     AuditLevelWarning,
		EventType: EventTypeValidation,
		Tool:      toolName,
		Message:   message,
		Success:   false,
	})
}

// LogIngest 记录一次表格导入
func (al *AuditLogger) LogIngest(traceID, path, kind string, rows int, duration int64, err error) {
	event := &AuditEvent{
		TraceID:   traceID,
		Level:     AuditLevelInfo,
		EventType: EventTypeIngest,
		Path:      path,
		Message:   fmt.Sprintf("ingest %s (%d rows)", kind, rows),
		Success:   err == nil,
		Duration:  duration,
		Metadata: map[string]interface{}{
			"kind": kind,
			"rows": rows,
		},
	}
	if err != nil {
		event.Level = AuditLevelError
		event.Message = err.Error()
	}
	al.Log(event)
}

// GetEvents 按时间顺序返回事件，offset 跳过最新的若干条
func (al *AuditLogger) GetEvents(offset, limit int) []*AuditEvent {
	al.bufLock.RLock()
	defer al.bufLock.RUnlock()

	stored := al.total
	if stored > al.size {
		stored = al.size
	}
	if offset < 0 {
		offset = 0
	}
	if limit > stored-offset {
		limit = stored - offset
	}
	if limit <= 0 {
		return []*AuditEvent{}
	}

	events := make([]*AuditEvent, 0, limit)
	// 计算起始位置（正确处理环形缓冲区回绕）
	start := ((al.index-offset-limit)%al.size + al.size) % al.size
	for i := 0; i < limit; i++ {
		if event := al.buffer[(start+i)%al.size]; event != nil {
			events = append(events, event)
		}
	}
	return events
}

// GetEventsByTraceID 获取指定 TraceID 的事件
func (al *AuditLogger) GetEventsByTraceID(traceID string) []*AuditEvent {
	return al.filter(func(e *AuditEvent) bool { return e.TraceID == traceID })
}

// GetEventsByType 获取指定类型的事件
func (al *AuditLogger) GetEventsByType(eventType AuditEventType) []*AuditEvent {
	return al.filter(func(e *AuditEvent) bool { return e.EventType == eventType })
}

// GetEventsByTool 获取指定工具的事件
func (al *AuditLogger) GetEventsByTool(tool string) []*AuditEvent {
	return al.filter(func(e *AuditEvent) bool { return e.Tool == tool })
}

func (al *AuditLogger) filter(match func(*AuditEvent) bool) []*AuditEvent {
	events := make([]*AuditEvent, 0)
	for _, event := range al.GetEvents(0, al.size) {
		if match(event) {
			events = append(events, event)
		}
	}
	return events
}

// Export 导出审计日志
func (al *AuditLogger) Export() (string, error) {
	data, err := json.MarshalIndent(al.GetEvents(0, al.size), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// generateEventID 生成事件ID
func generateEventID() string {
	return uuid.NewString()
}
