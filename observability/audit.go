package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	ApprovalDecision AuditEventType = "approval_decision"
	ReviewFlagged    AuditEventType = "review_flagged"
	ExportWritten    AuditEventType = "export_written"
	ExportFailed     AuditEventType = "export_failed"
	SessionCreated   AuditEventType = "session_created"
	DocumentIngested AuditEventType = "document_ingested"
)

// AuditSeverity represents the severity level of an audit event.
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeverityWarning AuditSeverity = "warning"
	SeverityError   AuditSeverity = "error"
)

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	EventType AuditEventType         `json:"event_type"`
	Severity  AuditSeverity          `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Result    string                 `json:"result,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`
}

// NewAuditEvent creates an event stamped with the span in ctx, if any.
func NewAuditEvent(ctx context.Context, eventType AuditEventType, severity AuditSeverity, message string) *AuditEvent {
	event := &AuditEvent{
		EventType: eventType,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]interface{}),
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
		event.SpanID = sc.SpanID().String()
	}
	return event
}

// AuditAdapter writes audit events somewhere.
type AuditAdapter interface {
	LogEvent(event *AuditEvent) error
}

// StructuredAuditAdapter writes one JSON object per line.
type StructuredAuditAdapter struct {
	Writer io.Writer
	mu     sync.Mutex
}

// NewStructuredAuditAdapter creates a new structured adapter.
func NewStructuredAuditAdapter(writer io.Writer) *StructuredAuditAdapter {
	if writer == nil {
		writer = os.Stdout
	}
	return &StructuredAuditAdapter{Writer: writer}
}

// LogEvent logs an event as JSON.
func (a *StructuredAuditAdapter) LogEvent(event *AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	_, err = fmt.Fprintln(a.Writer, string(data))
	return err
}

// FileAuditAdapter appends audit events to a file.
type FileAuditAdapter struct {
	FilePath   string
	Structured bool
	file       *os.File
	mu         sync.Mutex
}

// NewFileAuditAdapter opens (or creates) the audit file for appending.
func NewFileAuditAdapter(filePath string, structured bool) (*FileAuditAdapter, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileAuditAdapter{FilePath: filePath, Structured: structured, file: file}, nil
}

// LogEvent logs an event to file.
func (a *FileAuditAdapter) LogEvent(event *AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Structured {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal audit event: %w", err)
		}
		_, err = fmt.Fprintln(a.file, string(data))
		return err
	}
	_, err := fmt.Fprintln(a.file, FormatAuditEvent(event))
	return err
}

// Close closes the file adapter.
func (a *FileAuditAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// FormatAuditEvent renders an event as a single human readable line.
func FormatAuditEvent(event *AuditEvent) string {
	parts := []string{
		event.Timestamp.Format(time.RFC3339),
		fmt.Sprintf("[%s]", event.EventType),
		"severity=" + string(event.Severity),
	}
	if event.Actor != "" {
		parts = append(parts, "actor="+event.Actor)
	}
	if event.Resource != "" {
		parts = append(parts, "resource="+event.Resource)
	}
	if event.Result != "" {
		parts = append(parts, "result="+event.Result)
	}
	parts = append(parts, event.Message)
	return strings.Join(parts, " ")
}

// AuditLogger fans events out to its adapters.
type AuditLogger struct {
	adapters []AuditAdapter
	logger   *slog.Logger
}

// NewAuditLogger creates a new audit logger. Adapter failures are logged to
// logger and never reach the caller.
func NewAuditLogger(logger *slog.Logger, adapters ...AuditAdapter) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{adapters: adapters, logger: logger}
}

// LogEvent logs an audit event to all adapters.
func (l *AuditLogger) LogEvent(event *AuditEvent) {
	if l == nil {
		return
	}
	for _, adapter := range l.adapters {
		if err := adapter.LogEvent(event); err != nil {
			l.logger.Error("audit adapter failed", "event", event.EventType, "error", err)
		}
	}
}

// LogApproval records an approval decision for a transaction.
func (l *AuditLogger) LogApproval(ctx context.Context, actor, transactionID, decision string, approved, total int, percentage float64) {
	severity := SeverityInfo
	if decision != "APPROVED" {
		severity = SeverityWarning
	}
	event := NewAuditEvent(ctx, ApprovalDecision, severity,
		fmt.Sprintf("Transaction %s %s: %d of %d items approved (%.2f%%)", transactionID, strings.ToLower(decision), approved, total, percentage))
	event.Actor = actor
	event.Resource = transactionID
	event.Action = "approve"
	event.Result = decision
	event.Metadata["items_approved"] = approved
	event.Metadata["total_compared"] = total
	l.LogEvent(event)
}

// LogReviewFlagged records stock count lines marked for review.
func (l *AuditLogger) LogReviewFlagged(ctx context.Context, actor, transactionID string, itemCodes []string) {
	event := NewAuditEvent(ctx, ReviewFlagged, SeverityWarning,
		fmt.Sprintf("Marked %d stock count lines for review: %s", len(itemCodes), strings.Join(itemCodes, ", ")))
	event.Actor = actor
	event.Resource = transactionID
	event.Action = "mark_for_review"
	event.Result = "flagged"
	event.Metadata["item_codes"] = itemCodes
	l.LogEvent(event)
}

// LogExport records an export attempt.
func (l *AuditLogger) LogExport(ctx context.Context, actor, kind, location string, err error) {
	if err != nil {
		event := NewAuditEvent(ctx, ExportFailed, SeverityError, fmt.Sprintf("Export %s failed: %v", kind, err))
		event.Actor = actor
		event.Action = "export"
		event.Result = "failure"
		event.Metadata["kind"] = kind
		l.LogEvent(event)
		return
	}
	event := NewAuditEvent(ctx, ExportWritten, SeverityInfo, fmt.Sprintf("Exported %s to %s", kind, location))
	event.Actor = actor
	event.Resource = location
	event.Action = "export"
	event.Result = "success"
	event.Metadata["kind"] = kind
	l.LogEvent(event)
}

// LogSessionCreated records a new user session.
func (l *AuditLogger) LogSessionCreated(ctx context.Context, userID, sessionID string) {
	event := NewAuditEvent(ctx, SessionCreated, SeverityInfo, fmt.Sprintf("Session %s created for %s", sessionID, userID))
	event.Actor = userID
	event.Resource = sessionID
	event.Action = "create_session"
	event.Result = "success"
	l.LogEvent(event)
}

// LogIngest records a knowledge document ingestion.
func (l *AuditLogger) LogIngest(ctx context.Context, actor, source string, chunks int) {
	event := NewAuditEvent(ctx, DocumentIngested, SeverityInfo, fmt.Sprintf("Ingested %s as %d chunks", source, chunks))
	event.Actor = actor
	event.Resource = source
	event.Action = "ingest"
	event.Result = "success"
	event.Metadata["chunks"] = chunks
	l.LogEvent(event)
}
