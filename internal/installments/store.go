package installments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists installments. Implementations perform no business
// decisions; Update is a compare-and-swap on Version.
type Store interface {
	Create(ctx context.Context, inst Installment) (uuid.UUID, error)
	CreateMany(ctx context.Context, items []Installment) error
	Get(ctx context.Context, id uuid.UUID) (Installment, error)
	Update(ctx context.Context, id uuid.UUID, expectedVersion int64, patch Patch) (Installment, error)
	ListByPayment(ctx context.Context, paymentID int64) ([]Installment, error)
	ListByParent(ctx context.Context, parentID int64) ([]Installment, error)
	ListOverdueCandidates(ctx context.Context, now time.Time) ([]Installment, error)
	ListGraceExpiryCandidates(ctx context.Context, now time.Time) ([]Installment, error)
	ListDueForReminder(ctx context.Context, now time.Time) ([]Installment, error)
}

// reminderLookahead bounds the pending rows handed to the reminder policy.
// It is wider than the pre-due lead so timezone offsets never hide a row.
const reminderLookahead = (DefaultPreDueDays + 2) * 24 * time.Hour

// MemoryStore is a process local Store. It serialises writes per store,
// which trivially satisfies the per-record atomicity the engine needs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Installment
	now   func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]Installment), now: time.Now}
}

// Create inserts one installment, assigning an id when missing.
func (s *MemoryStore) Create(ctx context.Context, inst Installment) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.insertLocked(inst)
	return id, err
}

// CreateMany inserts all items or none.
func (s *MemoryStore) CreateMany(ctx context.Context, items []Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, inst := range items {
		if err := inst.Validate(); err != nil {
			return err
		}
		if inst.ID == uuid.Nil {
			continue
		}
		if _, ok := s.items[inst.ID]; ok {
			return ErrDuplicateInstallment
		}
		if _, ok := seen[inst.ID]; ok {
			return ErrDuplicateInstallment
		}
		seen[inst.ID] = struct{}{}
	}
	for _, inst := range items {
		if _, err := s.insertLocked(inst); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) insertLocked(inst Installment) (uuid.UUID, error) {
	if err := inst.Validate(); err != nil {
		return uuid.Nil, err
	}
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if _, ok := s.items[inst.ID]; ok {
		return uuid.Nil, ErrDuplicateInstallment
	}
	now := s.now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = inst.CreatedAt
	inst.Version = 1
	s.items[inst.ID] = inst
	return inst.ID, nil
}

// Get returns an installment by id.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.items[id]
	if !ok {
		return Installment{}, ErrRecordNotFound
	}
	return inst, nil
}

// Update applies patch when the stored version equals expectedVersion.
func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, expectedVersion int64, patch Patch) (Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.items[id]
	if !ok {
		return Installment{}, ErrRecordNotFound
	}
	if inst.Version != expectedVersion {
		return Installment{}, ErrConcurrentModification
	}
	patch.Apply(&inst)
	if patch.UpdatedAt.IsZero() {
		inst.UpdatedAt = s.now()
	}
	if err := inst.Validate(); err != nil {
		return Installment{}, err
	}
	inst.Version++
	s.items[id] = inst
	return inst, nil
}

// ListByPayment returns a payment's installments ordered by number.
func (s *MemoryStore) ListByPayment(ctx context.Context, paymentID int64) ([]Installment, error) {
	out := s.filter(func(i Installment) bool { return i.ParentPaymentID == paymentID })
	sort.Slice(out, func(a, b int) bool { return out[a].InstallmentNumber < out[b].InstallmentNumber })
	return out, nil
}

// ListByParent returns a parent's installments ordered by due date.
func (s *MemoryStore) ListByParent(ctx context.Context, parentID int64) ([]Installment, error) {
	out := s.filter(func(i Installment) bool { return i.ParentID == parentID })
	sortByDue(out)
	return out, nil
}

// ListOverdueCandidates returns pending installments due before now.
func (s *MemoryStore) ListOverdueCandidates(ctx context.Context, now time.Time) ([]Installment, error) {
	out := s.filter(func(i Installment) bool {
		return i.Status == StatusPending && i.DueDate.Before(now)
	})
	sortByDue(out)
	return out, nil
}

// ListGraceExpiryCandidates returns in-grace installments whose grace end
// lies before now.
func (s *MemoryStore) ListGraceExpiryCandidates(ctx context.Context, now time.Time) ([]Installment, error) {
	out := s.filter(func(i Installment) bool {
		return i.Status == StatusOverdue && i.IsInGracePeriod && i.GracePeriodEnd != nil && i.GracePeriodEnd.Before(now)
	})
	sortByDue(out)
	return out, nil
}

// ListDueForReminder returns pending installments inside the pre-due
// lookahead with no reminder yet, plus overdue installments in grace.
func (s *MemoryStore) ListDueForReminder(ctx context.Context, now time.Time) ([]Installment, error) {
	horizon := now.Add(reminderLookahead)
	out := s.filter(func(i Installment) bool {
		switch i.Status {
		case StatusPending:
			return i.RemindersSent == 0 && !i.DueDate.Before(now) && !i.DueDate.After(horizon)
		case StatusOverdue:
			return i.IsInGracePeriod
		}
		return false
	})
	sortByDue(out)
	return out, nil
}

func (s *MemoryStore) filter(keep func(Installment) bool) []Installment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Installment, 0)
	for _, inst := range s.items {
		if keep(inst) {
			out = append(out, inst)
		}
	}
	return out
}

func sortByDue(items []Installment) {
	sort.Slice(items, func(a, b int) bool {
		if items[a].DueDate.Equal(items[b].DueDate) {
			return items[a].InstallmentNumber < items[b].InstallmentNumber
		}
		return items[a].DueDate.Before(items[b].DueDate)
	})
}
