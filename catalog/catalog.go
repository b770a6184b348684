// Package catalog provides the backend systems the catering assistant looks
// things up in: the flight list, meal orders, stock counts and ERP records.
//
// The data is a fixed set of fixtures standing in for real airline systems.
// Two Store implementations carry it: a seeded in-memory store and a SQLite
// store that creates its own schema and seeds the same rows. Service wraps a
// Store and produces the status/message envelopes the agents consume.
package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Store when no record matches.
var ErrNotFound = errors.New("catalog: not found")

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Flight is a scheduled flight as known to the catering system.
type Flight struct {
	FlightNo           string `json:"flightNo"`
	FlightDate         string `json:"flightDate"`
	MflID              int    `json:"mflId"`
	RegistrationNumber string `json:"registration_number"`
	ServiceType        string `json:"serviceType"`
	FlightStatus       string `json:"flightStatus"`
}

// Flight statuses and service types that carry business meaning.
const (
	FlightStatusOpen      = "FO"
	FlightStatusFinalized = "FF"
	ServiceTypePassenger  = "J"
)

// FlightDateLayout is the DD-MMM-YYYY layout used for flight dates.
const FlightDateLayout = "02-Jan-2006"

// Record returns the flight as an export row.
func (f Flight) Record() map[string]interface{} {
	return map[string]interface{}{
		"flightNo":            f.FlightNo,
		"flightDate":          f.FlightDate,
		"mflId":               f.MflID,
		"registration_number": f.RegistrationNumber,
		"serviceType":         f.ServiceType,
		"flightStatus":        f.FlightStatus,
	}
}

// MealOrder holds the ordered meal counts per cabin for one master flight.
type MealOrder struct {
	MflID int `json:"mflId"`
	F     int `json:"f"`
	J     int `json:"j"`
	W     int `json:"w"`
	Y     int `json:"y"`
}

// Total returns the meal count across all cabins.
func (m MealOrder) Total() int {
	return m.F + m.J + m.W + m.Y
}

// StockCountItem is one counted line of a stock count transaction.
type StockCountItem struct {
	TransactionID string `json:"transaction_id"`
	ItemCode      string `json:"item_code"`
	ItemDesc      string `json:"item_desc"`
	BookBulk      int    `json:"book_bulk"`
	BookActual    int    `json:"book_actual"`
	FloatBook     int    `json:"float_book"`
	FloatActual   int    `json:"float_actual"`
	IsReviewYN    string `json:"is_review_yn"`
}

// Record returns the line as an export row.
func (s StockCountItem) Record() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": s.TransactionID,
		"item_code":      s.ItemCode,
		"item_desc":      s.ItemDesc,
		"book_bulk":      s.BookBulk,
		"book_actual":    s.BookActual,
		"float_book":     s.FloatBook,
		"float_actual":   s.FloatActual,
		"is_review_yn":   s.IsReviewYN,
	}
}

// ERPItem is the ERP system's view of a stock count line.
type ERPItem struct {
	TransactionID string `json:"transaction_id"`
	ItemCode      string `json:"item_code"`
	ItemDesc      string `json:"item_desc"`
	BookBulk      int    `json:"book_bulk"`
	BookActual    int    `json:"book_actual"`
	FloatBook     int    `json:"float_book"`
	FloatActual   int    `json:"float_actual"`
}

// Record returns the line as an export row.
func (e ERPItem) Record() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": e.TransactionID,
		"item_code":      e.ItemCode,
		"item_desc":      e.ItemDesc,
		"book_bulk":      e.BookBulk,
		"book_actual":    e.BookActual,
		"float_book":     e.FloatBook,
		"float_actual":   e.FloatActual,
	}
}

// StockCountRecords converts stock count lines to export rows.
func StockCountRecords(items []StockCountItem) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(items))
	for i, item := range items {
		rows[i] = item.Record()
	}
	return rows
}

// ERPRecords converts ERP lines to export rows.
func ERPRecords(items []ERPItem) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(items))
	for i, item := range items {
		rows[i] = item.Record()
	}
	return rows
}

// Store is a backend holding the catering fixtures.
//
// Lookups return ErrNotFound when nothing matches. An empty flightDate
// matches any date; the first flight in insertion order wins.
type Store interface {
	FindFlight(ctx context.Context, flightNo, flightDate string) (Flight, error)
	ListFlights(ctx context.Context) ([]Flight, error)
	FindMealOrder(ctx context.Context, mflID int) (MealOrder, error)
	StockCountLines(ctx context.Context, transactionID string) ([]StockCountItem, error)
	ERPLines(ctx context.Context, transactionID string) ([]ERPItem, error)
	// MarkForReview sets is_review_yn to "Y" for the given lines and returns
	// how many lines were updated.
	MarkForReview(ctx context.Context, transactionID string, itemCodes []string) (int, error)
	Close() error
}
