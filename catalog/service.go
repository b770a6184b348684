package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FlightResponse is the result of a flight lookup.
type FlightResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Data    *Flight `json:"data,omitempty"`
}

// MealOrderResponse is the result of a meal order lookup.
type MealOrderResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Data    *MealOrder `json:"data,omitempty"`
}

// StockCountResponse is the result of a stock count lookup.
type StockCountResponse struct {
	Status     string           `json:"status"`
	Message    string           `json:"message"`
	Data       []StockCountItem `json:"data"`
	TotalItems int              `json:"total_items"`
}

// ERPResponse is the result of an ERP lookup.
type ERPResponse struct {
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Data       []ERPItem `json:"data"`
	TotalItems int       `json:"total_items"`
}

// OK reports whether the lookup succeeded.
func (r StockCountResponse) OK() bool { return r.Status == StatusSuccess }

// OK reports whether the lookup succeeded.
func (r ERPResponse) OK() bool { return r.Status == StatusSuccess }

// Service answers lookups against a Store.
//
// Missing input and missing records come back as error-status responses with
// a message meant for the user. Only backend failures are returned as errors.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a lookup service. A nil logger uses slog.Default.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// GetFlightDetails looks a flight up by number and, optionally, date.
func (s *Service) GetFlightDetails(ctx context.Context, flightNo, flightDate string) (FlightResponse, error) {
	if flightNo == "" {
		return FlightResponse{Status: StatusError, Message: "Please provide flightNo"}, nil
	}

	f, err := s.store.FindFlight(ctx, flightNo, flightDate)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("flight not found", "flight_no", flightNo, "flight_date", flightDate)
		return FlightResponse{Status: StatusError, Message: "Flight details not found"}, nil
	}
	if err != nil {
		return FlightResponse{}, fmt.Errorf("get flight details: %w", err)
	}

	return FlightResponse{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Found flight %s on %s", f.FlightNo, f.FlightDate),
		Data:    &f,
	}, nil
}

// GetMealOrderDetails looks up the meal order for a master flight ID.
func (s *Service) GetMealOrderDetails(ctx context.Context, mflID int) (MealOrderResponse, error) {
	if mflID == 0 {
		return MealOrderResponse{Status: StatusError, Message: "Please provide mflId"}, nil
	}

	m, err := s.store.FindMealOrder(ctx, mflID)
	if errors.Is(err, ErrNotFound) {
		return MealOrderResponse{Status: StatusError, Message: "Meal order details not found"}, nil
	}
	if err != nil {
		return MealOrderResponse{}, fmt.Errorf("get meal order details: %w", err)
	}

	return MealOrderResponse{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Found meal order for mflId %d", m.MflID),
		Data:    &m,
	}, nil
}

// GetStockCountDetails returns every stock count line of a transaction.
func (s *Service) GetStockCountDetails(ctx context.Context, transactionID string) (StockCountResponse, error) {
	if transactionID == "" {
		return StockCountResponse{Status: StatusError, Message: "Please provide a valid transaction ID."}, nil
	}

	items, err := s.store.StockCountLines(ctx, transactionID)
	if errors.Is(err, ErrNotFound) {
		return StockCountResponse{
			Status:  StatusError,
			Message: "Stock count details not found for the given transaction ID",
		}, nil
	}
	if err != nil {
		return StockCountResponse{}, fmt.Errorf("get stock count details: %w", err)
	}

	s.logger.Debug("stock count lines loaded", "transaction_id", transactionID, "count", len(items))
	return StockCountResponse{
		Status:     StatusSuccess,
		Message:    fmt.Sprintf("Found %d stock count records for transaction %s", len(items), transactionID),
		Data:       items,
		TotalItems: len(items),
	}, nil
}

// GetERPDetails returns every ERP line of a transaction.
func (s *Service) GetERPDetails(ctx context.Context, transactionID string) (ERPResponse, error) {
	if transactionID == "" {
		return ERPResponse{Status: StatusError, Message: "Please provide a valid transaction ID."}, nil
	}

	items, err := s.store.ERPLines(ctx, transactionID)
	if errors.Is(err, ErrNotFound) {
		return ERPResponse{
			Status:  StatusError,
			Message: "ERP details not found for the given transaction ID",
		}, nil
	}
	if err != nil {
		return ERPResponse{}, fmt.Errorf("get ERP details: %w", err)
	}

	s.logger.Debug("ERP lines loaded", "transaction_id", transactionID, "count", len(items))
	return ERPResponse{
		Status:     StatusSuccess,
		Message:    fmt.Sprintf("Found %d ERP records for transaction %s", len(items), transactionID),
		Data:       items,
		TotalItems: len(items),
	}, nil
}

// MarkForReview flags stock count lines for manual review.
func (s *Service) MarkForReview(ctx context.Context, transactionID string, itemCodes []string) (int, error) {
	n, err := s.store.MarkForReview(ctx, transactionID, itemCodes)
	if err != nil {
		return 0, fmt.Errorf("mark for review: %w", err)
	}
	if n > 0 {
		s.logger.Info("stock count lines flagged for review", "transaction_id", transactionID, "count", n)
	}
	return n, nil
}
