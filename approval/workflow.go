// Package approval runs the stock count approval workflow.
//
// The workflow is a fixed five-stage pipeline built on
// patterns.SequentialAgent:
//
//  1. retrieve the stock count lines of the transaction
//  2. export them to a pre-approval file
//  3. retrieve the ERP lines
//  4. reconcile both sides and flag discrepancies for review
//  5. export ERP lines to a post-approval file, only when approved
//
// A lookup that finds nothing halts the pipeline with an error status and
// the lookup's message. Backend failures are returned as *StageError.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/catalog"
	"github.com/scttfrdmn/catering-agent-go/export"
	"github.com/scttfrdmn/catering-agent-go/observability"
	"github.com/scttfrdmn/catering-agent-go/patterns"
	"github.com/scttfrdmn/catering-agent-go/reconcile"
)

// AgentName is the name the workflow answers to in the agent tree.
const AgentName = "stock_count_approver_agent"

var transactionIDPattern = regexp.MustCompile(`(?i)\bTXN\d+\b`)

// ExtractTransactionID finds the first transaction ID in free text, e.g.
// "approve transaction txn001" yields "TXN001".
func ExtractTransactionID(text string) (string, bool) {
	id := transactionIDPattern.FindString(text)
	if id == "" {
		return "", false
	}
	return strings.ToUpper(id), true
}

// Config wires a Workflow to its collaborators. Catalog and Exporter are
// required.
type Config struct {
	Catalog  *catalog.Service
	Exporter *export.Exporter
	Recorder *observability.Recorder
	Audit    *observability.AuditLogger
	Logger   *slog.Logger
}

// StageLog records one executed stage.
type StageLog struct {
	Stage  string `json:"stage"`
	Halted bool   `json:"halted"`
}

// Result is the outcome of one workflow run.
type Result struct {
	TransactionID string `json:"transaction_id"`
	// Status is "success" when the workflow reached a decision and "error"
	// when a lookup halted it.
	Status     string            `json:"status"`
	Message    string            `json:"message"`
	Report     *reconcile.Report `json:"report,omitempty"`
	PreExport  string            `json:"pre_approval_export,omitempty"`
	PostExport string            `json:"post_approval_export,omitempty"`
	Flagged    []string          `json:"flagged_items,omitempty"`
	Stages     []StageLog        `json:"stages"`
}

// Decision returns the reconciliation decision, or "" when none was made.
func (r *Result) Decision() reconcile.Decision {
	if r.Report == nil {
		return ""
	}
	return r.Report.Decision
}

// Summary renders the result as the text shown to users.
func (r *Result) Summary() string {
	if r.Report == nil {
		return r.Message
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stock count approval for transaction %s\n\n", r.TransactionID)
	if r.PreExport != "" {
		fmt.Fprintf(&b, "Pre-approval export: %s\n\n", r.PreExport)
	}
	b.WriteString(r.Report.Format())
	b.WriteByte('\n')
	if r.PostExport != "" {
		fmt.Fprintf(&b, "Post-approval export: %s\n", r.PostExport)
	} else {
		b.WriteString(RejectedNoExport + "\n")
	}
	return b.String()
}

// Workflow is the stock count approval pipeline. It also implements
// agenkit.Agent so it can be routed to like any other agent.
type Workflow struct {
	catalog  *catalog.Service
	exporter *export.Exporter
	recorder *observability.Recorder
	audit    *observability.AuditLogger
	logger   *slog.Logger
	pipeline *patterns.SequentialAgent
}

var _ agenkit.Agent = (*Workflow)(nil)

// New builds the workflow.
func New(cfg Config) (*Workflow, error) {
	if cfg.Catalog == nil || cfg.Exporter == nil {
		return nil, errors.New("approval: catalog and exporter are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &Workflow{
		catalog:  cfg.Catalog,
		exporter: cfg.Exporter,
		recorder: cfg.Recorder,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
	}
	pipeline, err := patterns.NewSequentialAgent("approval_pipeline", w.stages())
	if err != nil {
		return nil, err
	}
	w.pipeline = pipeline.WithDescription("Stock count approval pipeline")
	return w, nil
}

// Run executes the workflow for one transaction. The ID is matched case
// insensitively. Audit events carry no actor; Process attributes them to
// the message's user.
func (w *Workflow) Run(ctx context.Context, transactionID string) (*Result, error) {
	return w.run(ctx, transactionID, "")
}

func (w *Workflow) run(ctx context.Context, transactionID, actor string) (*Result, error) {
	transactionID = strings.ToUpper(strings.TrimSpace(transactionID))
	in := agenkit.NewMessage(agenkit.RoleUser, "approve transaction "+transactionID).
		WithMetadata(MetadataTransactionID, transactionID)

	out, err := w.pipeline.Process(ctx, in)
	if err != nil {
		w.logger.Error("approval workflow failed", "transaction_id", transactionID, "error", err)
		return nil, err
	}

	result := &Result{
		TransactionID: transactionID,
		Status:        out.MetadataString(MetadataStatus),
		Message:       out.Content,
		PreExport:     out.MetadataString(MetadataPreExport),
		PostExport:    out.MetadataString(MetadataPostExport),
	}
	result.Report, _ = out.Metadata[MetadataReport].(*reconcile.Report)
	result.Flagged, _ = out.Metadata[MetadataFlagged].([]string)
	if stages, ok := out.Metadata[patterns.MetadataStages].([]map[string]interface{}); ok {
		for _, s := range stages {
			name, _ := s["agent"].(string)
			halted, _ := s["halted"].(bool)
			result.Stages = append(result.Stages, StageLog{Stage: name, Halted: halted})
		}
	}

	if result.Report != nil {
		decision := string(result.Report.Decision)
		w.recorder.Approval(ctx, decision, len(result.Flagged))
		w.audit.LogApproval(ctx, actor, transactionID, decision,
			result.Report.ItemsApproved, result.Report.TotalCompared, result.Report.ApprovalPercentage)
		if len(result.Flagged) > 0 {
			w.audit.LogReviewFlagged(ctx, actor, transactionID, result.Flagged)
		}
	}
	return result, nil
}

// Name implements agenkit.Agent.
func (w *Workflow) Name() string { return AgentName }

// Description implements agenkit.Describer.
func (w *Workflow) Description() string {
	return "Approves stock counts by reconciling them with ERP data and exporting the results"
}

// Capabilities implements agenkit.Agent.
func (w *Workflow) Capabilities() []string {
	return []string{"stock_count_approval", "reconciliation", "export"}
}

// Introspect reports the pipeline stages as children.
func (w *Workflow) Introspect() *agenkit.IntrospectionResult {
	result := agenkit.DefaultIntrospectionResult(w)
	result.Children = []*agenkit.IntrospectionResult{w.pipeline.Introspect()}
	return result
}

// Process extracts a transaction ID from the message (or its
// transaction_id metadata) and runs the workflow. The response carries the
// *Result under MetadataResult.
func (w *Workflow) Process(ctx context.Context, message *agenkit.Message) (*agenkit.Message, error) {
	txn := message.MetadataString(MetadataTransactionID)
	if txn == "" {
		txn, _ = ExtractTransactionID(message.Content)
	}
	if txn == "" {
		return agenkit.NewMessage(agenkit.RoleAgent, "Please provide a valid transaction ID.").
			WithMetadata(MetadataStatus, catalog.StatusError), nil
	}

	result, err := w.run(ctx, txn, message.MetadataString(agenkit.MetadataUserID))
	if err != nil {
		return nil, err
	}

	response := agenkit.NewMessage(agenkit.RoleAgent, result.Summary()).
		WithMetadata(MetadataResult, result).
		WithMetadata(MetadataStatus, result.Status).
		WithMetadata(patterns.MetadataAgentPath, []string{AgentName})
	if sid := message.MetadataString(agenkit.MetadataSessionID); sid != "" {
		response.WithMetadata(agenkit.MetadataSessionID, sid)
	}
	return response, nil
}
