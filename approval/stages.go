package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/catalog"
	"github.com/scttfrdmn/catering-agent-go/patterns"
	"github.com/scttfrdmn/catering-agent-go/reconcile"
)

// Stage names, in pipeline order.
const (
	StageRetrieveStockCount = "retrieve_stock_count"
	StagePreApprovalExport  = "export_pre_approval"
	StageRetrieveERP        = "retrieve_erp_data"
	StageReconcile          = "reconcile"
	StagePostApproval       = "post_approval"
)

// Metadata keys carrying workflow state between stages.
const (
	MetadataTransactionID = "transaction_id"
	MetadataStockCount    = "approval_stock_count"
	MetadataERP           = "approval_erp_data"
	MetadataReport        = "approval_report"
	MetadataPreExport     = "approval_pre_export"
	MetadataPostExport    = "approval_post_export"
	MetadataFlagged       = "approval_flagged"
	MetadataStatus        = "approval_status"
	MetadataResult        = "approval_result"
)

// RejectedNoExport is reported by the last stage when the count is rejected.
const RejectedNoExport = "Transaction was rejected. No post-approval export performed."

// NoComparisonData is reported when reconciliation has no lines to compare.
const NoComparisonData = "Invalid data provided for comparison"

// StageError is returned when a stage fails on a backend error, as opposed
// to a lookup that finds nothing.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("approval stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stage adapts a function to agenkit.Agent so it can sit in a pipeline.
type stage struct {
	name        string
	description string
	run         func(ctx context.Context, in *agenkit.Message) (*agenkit.Message, error)
}

var _ agenkit.Agent = (*stage)(nil)

func (s *stage) Name() string           { return s.name }
func (s *stage) Description() string    { return s.description }
func (s *stage) Capabilities() []string { return []string{"approval_stage"} }

func (s *stage) Introspect() *agenkit.IntrospectionResult {
	return agenkit.DefaultIntrospectionResult(s)
}

func (s *stage) Process(ctx context.Context, in *agenkit.Message) (*agenkit.Message, error) {
	out, err := s.run(ctx, in)
	if err != nil {
		return nil, &StageError{Stage: s.name, Err: err}
	}
	return out, nil
}

// halt ends the pipeline with an error status and a message for the user.
func halt(content string) *agenkit.Message {
	return agenkit.NewMessage(agenkit.RoleAgent, content).
		WithMetadata(patterns.MetadataHalt, true).
		WithMetadata(MetadataStatus, catalog.StatusError)
}

func (w *Workflow) stages() []agenkit.Agent {
	return []agenkit.Agent{
		&stage{
			name:        StageRetrieveStockCount,
			description: "Fetches the stock count lines of the transaction",
			run:         w.retrieveStockCount,
		},
		&stage{
			name:        StagePreApprovalExport,
			description: "Exports the stock count lines to a pre-approval file",
			run:         w.exportPreApproval,
		},
		&stage{
			name:        StageRetrieveERP,
			description: "Fetches the ERP lines of the transaction",
			run:         w.retrieveERP,
		},
		&stage{
			name:        StageReconcile,
			description: "Compares stock count and ERP lines and flags discrepancies for review",
			run:         w.reconcile,
		},
		&stage{
			name:        StagePostApproval,
			description: "Exports ERP lines to a post-approval file when the count is approved",
			run:         w.postApproval,
		},
	}
}

func (w *Workflow) retrieveStockCount(ctx context.Context, in *agenkit.Message) (*agenkit.Message, error) {
	txn := in.MetadataString(MetadataTransactionID)
	resp, err := w.catalog.GetStockCountDetails(ctx, txn)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return halt(resp.Message), nil
	}

	w.logger.Debug("approval stage complete", "stage", StageRetrieveStockCount, "transaction_id", txn, "lines", len(resp.Data))
	return agenkit.NewMessage(agenkit.RoleAgent, resp.Message).
		WithMetadata(MetadataStockCount, resp.Data), nil
}

func (w *Workflow) exportPreApproval(ctx context.Context, in *agenkit.Message) (*agenkit.Message, error) {
	stock, _ := in.Metadata[MetadataStockCount].([]catalog.StockCountItem)
	msg, err := w.exporter.ExportPreApproval(ctx, catalog.StockCountRecords(stock))
	if err != nil {
		return nil, err
	}

	w.logger.Debug("approval stage complete", "stage", StagePreApprovalExport, "result", msg)
	return agenkit.NewMessage(agenkit.RoleAgent, msg).
		WithMetadata(MetadataPreExport, msg), nil
}

func (w *Workflow) retrieveERP(ctx context.Context, in *agenkit.Message) (*agenkit.Message, error) {
	txn := in.MetadataString(MetadataTransactionID)
	resp, err := w.catalog.GetERPDetails(ctx, txn)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return halt(resp.Message), nil
	}

	w.logger.Debug("approval stage complete", "stage", StageRetrieveERP, "transaction_id", txn, "lines", len(resp.Data))
	return agenkit.NewMessage(agenkit.RoleAgent, resp.Message).
		WithMetadata(MetadataERP, resp.Data), nil
}

func (w *Workflow) reconcile(ctx context.Context, in *agenkit.Message) (*agenkit.Message, error) {
	txn := in.MetadataString(MetadataTransactionID)
	stock, _ := in.Metadata[MetadataStockCount].([]catalog.StockCountItem)
	erp, _ := in.Metadata[MetadataERP].([]catalog.ERPItem)

	report, err := reconcile.Compare(stock, erp)
	if errors.Is(err, reconcile.ErrNoData) {
		return halt(NoComparisonData), nil
	}
	if err != nil {
		return nil, err
	}

	flagged := report.FlaggedItemCodes()
	if len(flagged) > 0 {
		if _, err := w.catalog.MarkForReview(ctx, txn, flagged); err != nil {
			return nil, err
		}
	}

	w.logger.Info("stock count reconciled",
		"transaction_id", txn,
		"decision", report.Decision,
		"items_approved", report.ItemsApproved,
		"total_compared", report.TotalCompared)

	return agenkit.NewMessage(agenkit.RoleAgent, report.Format()).
		WithMetadata(MetadataReport, report).
		WithMetadata(MetadataFlagged, flagged), nil
}

func (w *Workflow) postApproval(ctx context.Context, in *agenkit.Message) (*agenkit.Message, error) {
	report, _ := in.Metadata[MetadataReport].(*reconcile.Report)
	if report == nil || !report.IsApproved() {
		return agenkit.NewMessage(agenkit.RoleAgent, RejectedNoExport).
			WithMetadata(MetadataStatus, catalog.StatusSuccess), nil
	}

	erp, _ := in.Metadata[MetadataERP].([]catalog.ERPItem)
	msg, err := w.exporter.ExportPostApproval(ctx, catalog.ERPRecords(erp))
	if err != nil {
		return nil, err
	}
	return agenkit.NewMessage(agenkit.RoleAgent, msg).
		WithMetadata(MetadataPostExport, msg).
		WithMetadata(MetadataStatus, catalog.StatusSuccess), nil
}
