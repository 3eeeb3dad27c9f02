package payments

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps payment records in memory for the memory storage driver
// and tests.
type MemoryStore struct {
	mu       sync.Mutex
	payments map[int64]Payment
	flips    map[int64]int
}

// NewMemoryStore seeds a store with the given payments.
func NewMemoryStore(seed ...Payment) *MemoryStore {
	s := &MemoryStore{payments: make(map[int64]Payment), flips: make(map[int64]int)}
	for _, p := range seed {
		if p.Status == "" {
			p.Status = StatusPending
		}
		s.payments[p.ID] = p
	}
	return s
}

// Put inserts or replaces a payment.
func (s *MemoryStore) Put(p Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == "" {
		p.Status = StatusPending
	}
	s.payments[p.ID] = p
}

// GetPayment returns a payment by id.
func (s *MemoryStore) GetPayment(ctx context.Context, id int64) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

// UpdatePaymentStatus mirrors Repository.UpdatePaymentStatus.
func (s *MemoryStore) UpdatePaymentStatus(ctx context.Context, id int64, status Status, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status == status {
		return false, nil
	}
	p.Status = status
	p.PaidAt = nil
	if status == StatusPaid {
		at := paidAt
		p.PaidAt = &at
	}
	p.UpdatedAt = paidAt
	s.payments[id] = p
	s.flips[id]++
	return true, nil
}

// StatusChanges reports how many times the payment status was changed.
func (s *MemoryStore) StatusChanges(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flips[id]
}
