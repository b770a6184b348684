// Package reconcile compares a stock count against the ERP system's view of
// the same transaction and decides whether the count can be approved.
//
// Lines are matched on transaction_id + "_" + item_code. Only book_bulk and
// book_actual take part in the comparison; float quantities and descriptions
// are ignored. A transaction is approved only when every line matches and no
// line exists on just one side.
package reconcile

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/scttfrdmn/catering-agent-go/catalog"
)

// ErrNoData is returned when neither side has any lines.
var ErrNoData = errors.New("invalid data provided for comparison")

// Decision is the overall outcome of a reconciliation.
type Decision string

const (
	Approved Decision = "APPROVED"
	Rejected Decision = "REJECTED"
)

// Kind classifies a discrepancy.
type Kind string

const (
	KindMismatch            Kind = "mismatch"
	KindMissingInERP        Kind = "missing_in_erp"
	KindMissingInStockCount Kind = "missing_in_stock_count"
)

// Compared fields.
const (
	FieldBookBulk   = "book_bulk"
	FieldBookActual = "book_actual"
)

// FieldDiff is a difference in one compared field.
type FieldDiff struct {
	Field      string `json:"field"`
	StockCount int    `json:"stock_count"`
	ERP        int    `json:"erp"`
	// Difference is StockCount - ERP.
	Difference int `json:"difference"`
}

// Line identifies a reconciled line item.
type Line struct {
	Key           string `json:"key"`
	TransactionID string `json:"transaction_id"`
	ItemCode      string `json:"item_code"`
	ItemDesc      string `json:"item_desc"`
}

// Discrepancy is a line that needs review.
type Discrepancy struct {
	Line
	Kind  Kind        `json:"kind"`
	Diffs []FieldDiff `json:"diffs,omitempty"`
}

// Report is the result of a reconciliation.
type Report struct {
	Decision             Decision      `json:"decision"`
	TotalCompared        int           `json:"total_compared"`
	ItemsApproved        int           `json:"items_approved"`
	ItemsRequiringReview int           `json:"items_requiring_review"`
	ApprovalPercentage   float64       `json:"approval_percentage"`
	Discrepancies        []Discrepancy `json:"discrepancies"`
	ApprovedItems        []Line        `json:"approved_items"`
	// StockCount is the input stock count with is_review_yn set to "Y" on
	// every line that needs review.
	StockCount []catalog.StockCountItem `json:"stock_count"`
}

// Key returns the matching key for a line.
func Key(transactionID, itemCode string) string {
	return transactionID + "_" + itemCode
}

// Compare reconciles stock count lines against ERP lines.
//
// Discrepancies and approved items follow stock count order; lines only
// present in the ERP data come last, in ERP order. The summary counts always
// equal the lengths of the detailed lists.
func Compare(stock []catalog.StockCountItem, erp []catalog.ERPItem) (*Report, error) {
	if len(stock) == 0 && len(erp) == 0 {
		return nil, ErrNoData
	}

	erpByKey := make(map[string]catalog.ERPItem, len(erp))
	for _, e := range erp {
		k := Key(e.TransactionID, e.ItemCode)
		if _, dup := erpByKey[k]; !dup {
			erpByKey[k] = e
		}
	}

	report := &Report{
		Discrepancies: []Discrepancy{},
		ApprovedItems: []Line{},
		StockCount:    make([]catalog.StockCountItem, len(stock)),
	}
	copy(report.StockCount, stock)

	seen := make(map[string]bool, len(stock))
	for i, s := range stock {
		k := Key(s.TransactionID, s.ItemCode)
		seen[k] = true
		line := Line{Key: k, TransactionID: s.TransactionID, ItemCode: s.ItemCode, ItemDesc: s.ItemDesc}

		e, ok := erpByKey[k]
		if !ok {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{Line: line, Kind: KindMissingInERP})
			report.StockCount[i].IsReviewYN = "Y"
			continue
		}

		diffs := compareFields(s, e)
		if len(diffs) > 0 {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{Line: line, Kind: KindMismatch, Diffs: diffs})
			report.StockCount[i].IsReviewYN = "Y"
			continue
		}
		report.ApprovedItems = append(report.ApprovedItems, line)
	}

	for _, e := range erp {
		k := Key(e.TransactionID, e.ItemCode)
		if seen[k] {
			continue
		}
		seen[k] = true
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Line: Line{Key: k, TransactionID: e.TransactionID, ItemCode: e.ItemCode, ItemDesc: e.ItemDesc},
			Kind: KindMissingInStockCount,
		})
	}

	report.ItemsApproved = len(report.ApprovedItems)
	report.ItemsRequiringReview = len(report.Discrepancies)
	report.TotalCompared = report.ItemsApproved + report.ItemsRequiringReview
	if report.TotalCompared > 0 {
		pct := float64(report.ItemsApproved) / float64(report.TotalCompared) * 100
		report.ApprovalPercentage = math.Round(pct*100) / 100
	}

	report.Decision = Approved
	if report.ItemsRequiringReview > 0 {
		report.Decision = Rejected
	}
	return report, nil
}

func compareFields(s catalog.StockCountItem, e catalog.ERPItem) []FieldDiff {
	var diffs []FieldDiff
	if d := s.BookBulk - e.BookBulk; d != 0 {
		diffs = append(diffs, FieldDiff{Field: FieldBookBulk, StockCount: s.BookBulk, ERP: e.BookBulk, Difference: d})
	}
	if d := s.BookActual - e.BookActual; d != 0 {
		diffs = append(diffs, FieldDiff{Field: FieldBookActual, StockCount: s.BookActual, ERP: e.BookActual, Difference: d})
	}
	return diffs
}

// IsApproved reports whether the transaction was approved.
func (r *Report) IsApproved() bool {
	return r.Decision == Approved
}

// FlaggedItemCodes returns the item codes of stock count lines that need
// review, in stock count order.
func (r *Report) FlaggedItemCodes() []string {
	var codes []string
	for _, d := range r.Discrepancies {
		if d.Kind != KindMissingInStockCount {
			codes = append(codes, d.ItemCode)
		}
	}
	return codes
}

// Format renders the report as the approval summary shown to users.
func (r *Report) Format() string {
	var b strings.Builder

	b.WriteString("**Approval Status:**\n")
	fmt.Fprintf(&b, "- Overall approval: %s\n", r.Decision)
	fmt.Fprintf(&b, "- Total items compared: %d\n", r.TotalCompared)
	fmt.Fprintf(&b, "- Items approved: %d\n", r.ItemsApproved)
	fmt.Fprintf(&b, "- Items requiring review: %d\n", r.ItemsRequiringReview)
	fmt.Fprintf(&b, "- Approval percentage: %.2f%%\n", r.ApprovalPercentage)

	b.WriteString("\n**Discrepancies Found:**\n")
	if len(r.Discrepancies) == 0 {
		b.WriteString("No discrepancies found - all items match exactly\n")
	}
	for i, d := range r.Discrepancies {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, d.Line.describe())
		switch d.Kind {
		case KindMissingInERP:
			b.WriteString("   - Status: missing_in_erp (present in stock count only)\n")
		case KindMissingInStockCount:
			b.WriteString("   - Status: missing_in_stock_count (present in ERP only)\n")
		default:
			for _, fd := range d.Diffs {
				fmt.Fprintf(&b, "   - %s: Stock Count %d vs ERP %d (Difference: %d)\n",
					fd.Field, fd.StockCount, fd.ERP, fd.Difference)
			}
		}
		b.WriteString("   - Review Required: YES\n")
	}

	b.WriteString("\n**Approved Items:**\n")
	if len(r.ApprovedItems) == 0 {
		b.WriteString("None\n")
	}
	for i, l := range r.ApprovedItems {
		fmt.Fprintf(&b, "%d. %s\n", i+1, l.describe())
	}

	return b.String()
}

func (l Line) describe() string {
	return fmt.Sprintf("Transaction ID: %s, Item Code: %s, Item Description: %s", l.TransactionID, l.ItemCode, l.ItemDesc)
}
