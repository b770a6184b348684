// Package export writes records to fixed-width text tables.
//
// A table has one column per distinct key across all rows, sorted by name.
// Each column is as wide as its longest cell (header included); cells are
// left-justified and separated by " | ", with a dashed rule under the header.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Export errors. UserMessage renders them for display.
var (
	ErrInvalidData = errors.New("invalid data format: expected a list of records or a single record")
	ErrInvalidItem = errors.New("invalid data format: each item should be a record")
	ErrInvalidName = errors.New("invalid export file name")
)

// UserMessage returns the text shown to a user for a failed export.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidData):
		return "Invalid data format. Expected a list of dictionaries or a single dictionary."
	case errors.Is(err, ErrInvalidItem):
		return "Invalid data format. Each item should be a dictionary."
	}
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	return string(unicode.ToUpper(r)) + msg[size:]
}

// Export kinds, used in file names and metrics.
const (
	KindGeneric      = "exported_data"
	KindStockCount   = "stock_count"
	KindPreApproval  = "pre_approval"
	KindPostApproval = "post_approval"
)

const timestampLayout = "20060102_150405"

// Row is one record of a table.
type Row = map[string]interface{}

// Hook is called after every export attempt with the location written, or
// the error.
type Hook func(ctx context.Context, kind, location string, err error)

// Exporter renders rows into text tables and hands them to a Sink.
type Exporter struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
	hooks  []Hook
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock sets the clock used for timestamped file names.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) { e.logger = logger }
}

// WithHook registers a hook called after every export.
func WithHook(h Hook) Option {
	return func(e *Exporter) { e.hooks = append(e.hooks, h) }
}

// New creates an exporter writing to sink.
func New(sink Sink, opts ...Option) *Exporter {
	e := &Exporter{
		sink:   sink,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportToText writes data to filename and returns the success message
// "Successfully exported data to: <location>".
//
// data may be a single record or a list of records. An empty filename
// produces exported_data_<timestamp>.txt; ".txt" is appended when missing.
func (e *Exporter) ExportToText(ctx context.Context, data interface{}, filename string) (string, error) {
	return e.export(ctx, KindGeneric, data, filename)
}

// ExportStockCount writes stock count rows to stock_count_<txn>_<timestamp>.txt,
// or stock_count_<timestamp>.txt without a transaction ID.
func (e *Exporter) ExportStockCount(ctx context.Context, data interface{}, transactionID string) (string, error) {
	name := KindStockCount + "_" + e.timestamp() + ".txt"
	if transactionID != "" {
		name = KindStockCount + "_" + transactionID + "_" + e.timestamp() + ".txt"
	}
	return e.export(ctx, KindStockCount, data, name)
}

// ExportPreApproval writes rows to pre_approval_<timestamp>.txt.
func (e *Exporter) ExportPreApproval(ctx context.Context, data interface{}) (string, error) {
	return e.export(ctx, KindPreApproval, data, KindPreApproval+"_"+e.timestamp()+".txt")
}

// ExportPostApproval writes rows to post_approval_<timestamp>.txt.
func (e *Exporter) ExportPostApproval(ctx context.Context, data interface{}) (string, error) {
	return e.export(ctx, KindPostApproval, data, KindPostApproval+"_"+e.timestamp()+".txt")
}

func (e *Exporter) timestamp() string {
	return e.now().Format(timestampLayout)
}

func (e *Exporter) export(ctx context.Context, kind string, data interface{}, filename string) (msg string, err error) {
	var location string
	defer func() {
		for _, h := range e.hooks {
			h(ctx, kind, location, err)
		}
	}()

	rows, err := NormalizeRows(data)
	if err != nil {
		return "", err
	}

	if filename == "" {
		filename = KindGeneric + "_" + e.timestamp() + ".txt"
	}
	if !strings.HasSuffix(filename, ".txt") {
		filename += ".txt"
	}

	location, err = e.sink.Write(ctx, filename, []byte(Render(rows)))
	if err != nil {
		e.logger.Error("export failed", "kind", kind, "file", filename, "error", err)
		return "", fmt.Errorf("error exporting data: %w", err)
	}

	e.logger.Info("data exported", "kind", kind, "location", location, "rows", len(rows))
	return "Successfully exported data to: " + location, nil
}

// NormalizeRows accepts a record, a list of records, or a decoded JSON value
// of either shape and returns the rows.
func NormalizeRows(data interface{}) ([]Row, error) {
	switch v := data.(type) {
	case map[string]interface{}:
		if len(v) == 0 {
			return nil, ErrInvalidItem
		}
		return []Row{v}, nil
	case []map[string]interface{}:
		if len(v) == 0 {
			return nil, ErrInvalidData
		}
		if len(v[0]) == 0 {
			return nil, ErrInvalidItem
		}
		return v, nil
	case []interface{}:
		if len(v) == 0 {
			return nil, ErrInvalidData
		}
		rows := make([]Row, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok || len(m) == 0 {
				return nil, ErrInvalidItem
			}
			rows = append(rows, m)
		}
		return rows, nil
	default:
		return nil, ErrInvalidData
	}
}

// Render formats rows as a text table, one line per row plus the header
// and separator lines, each terminated by a newline.
func Render(rows []Row) string {
	keySet := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	widths := make(map[string]int, len(keys))
	for _, k := range keys {
		widths[k] = utf8.RuneCountInString(k)
		for _, row := range rows {
			if n := utf8.RuneCountInString(cell(row, k)); n > widths[k] {
				widths[k] = n
			}
		}
	}

	var b strings.Builder
	header := formatLine(keys, widths, func(k string) string { return k })
	b.WriteString(header)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", utf8.RuneCountInString(header)))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(formatLine(keys, widths, func(k string) string { return cell(row, k) }))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatLine(keys []string, widths map[string]int, value func(string) string) string {
	cells := make([]string, len(keys))
	for i, k := range keys {
		v := value(k)
		cells[i] = v + strings.Repeat(" ", widths[k]-utf8.RuneCountInString(v))
	}
	return strings.Join(cells, " | ")
}

func cell(row Row, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
