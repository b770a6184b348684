package catalog

import (
	"context"
	"sync"
)

// MemoryStore is a Store seeded with the fixtures and held in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	flights []Flight
	meals   []MealOrder
	stock   []StockCountItem
	erp     []ERPItem
}

// NewMemoryStore creates a store seeded with Fixtures.
func NewMemoryStore() *MemoryStore {
	flights, meals, stock, erp := Fixtures()
	return &MemoryStore{
		flights: flights,
		meals:   meals,
		stock:   stock,
		erp:     erp,
	}
}

// FindFlight implements Store.
func (s *MemoryStore) FindFlight(ctx context.Context, flightNo, flightDate string) (Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.flights {
		if f.FlightNo != flightNo {
			continue
		}
		if flightDate == "" || f.FlightDate == flightDate {
			return f, nil
		}
	}
	return Flight{}, ErrNotFound
}

// ListFlights implements Store.
func (s *MemoryStore) ListFlights(ctx context.Context) ([]Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Flight, len(s.flights))
	copy(out, s.flights)
	return out, nil
}

// FindMealOrder implements Store.
func (s *MemoryStore) FindMealOrder(ctx context.Context, mflID int) (MealOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.meals {
		if m.MflID == mflID {
			return m, nil
		}
	}
	return MealOrder{}, ErrNotFound
}

// StockCountLines implements Store.
func (s *MemoryStore) StockCountLines(ctx context.Context, transactionID string) ([]StockCountItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StockCountItem
	for _, item := range s.stock {
		if item.TransactionID == transactionID {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// ERPLines implements Store.
func (s *MemoryStore) ERPLines(ctx context.Context, transactionID string) ([]ERPItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ERPItem
	for _, item := range s.erp {
		if item.TransactionID == transactionID {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// MarkForReview implements Store.
func (s *MemoryStore) MarkForReview(ctx context.Context, transactionID string, itemCodes []string) (int, error) {
	if len(itemCodes) == 0 {
		return 0, nil
	}
	codes := make(map[string]bool, len(itemCodes))
	for _, c := range itemCodes {
		codes[c] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for i := range s.stock {
		if s.stock[i].TransactionID == transactionID && codes[s.stock[i].ItemCode] {
			s.stock[i].IsReviewYN = "Y"
			updated++
		}
	}
	return updated, nil
}

// Close implements Store. It is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
