package reservation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists reservations.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Reservation, error)
	Create(ctx context.Context, r *Reservation) error
	Update(ctx context.Context, r *Reservation) error
	Delete(ctx context.Context, id string) error
}

// MemoryRepository keeps reservations in process.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]Reservation
	now  func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]Reservation), now: time.Now}
}

func (m *MemoryRepository) List(_ context.Context, f Filter) ([]Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Reservation, 0, len(m.rows))
	for _, r := range m.rows {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (m *MemoryRepository) Create(_ context.Context, r *Reservation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := m.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.rows[r.ID] = *r
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, r *Reservation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.rows[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = m.now().UTC()
	m.rows[r.ID] = *r
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func sortReservations(rows []Reservation) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CheckIn.Equal(rows[j].CheckIn) {
			return rows[i].CheckIn.Before(rows[j].CheckIn)
		}
		if rows[i].CustomerName != rows[j].CustomerName {
			return rows[i].CustomerName < rows[j].CustomerName
		}
		return rows[i].ID < rows[j].ID
	})
}
