package parents

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads parent contact details from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetParent loads a parent by id.
func (r *Repository) GetParent(ctx context.Context, id int64) (Parent, error) {
	var p Parent
	var phone pgtype.Text
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, phone FROM parents WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Email, &phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Parent{}, ErrNotFound
	}
	if err != nil {
		return Parent{}, err
	}
	p.Phone = phone.String
	return p, nil
}

// MemoryRepository serves parents from memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	parents map[int64]Parent
	calls   int
}

// NewMemoryRepository seeds a memory repository.
func NewMemoryRepository(seed ...Parent) *MemoryRepository {
	m := &MemoryRepository{parents: make(map[int64]Parent)}
	for _, p := range seed {
		m.parents[p.ID] = p
	}
	return m
}

// Put inserts or replaces a parent.
func (m *MemoryRepository) Put(p Parent) {
	m.mu.Lock()
	m.parents[p.ID] = p
	m.mu.Unlock()
}

// GetParent returns a parent by id.
func (m *MemoryRepository) GetParent(ctx context.Context, id int64) (Parent, error) {
	m.mu.Lock()
	m.calls++
	p, ok := m.parents[id]
	m.mu.Unlock()
	if !ok {
		return Parent{}, ErrNotFound
	}
	return p, nil
}

// Calls reports how many lookups reached the repository.
func (m *MemoryRepository) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
