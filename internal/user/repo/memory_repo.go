package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-civic-auth/pkg/utilities"
)

// MemoryRepo is a process-local Store. The uniqueness check and the write
// happen under one lock, which gives the same guarantee as the unique
// constraints of the Postgres table.
type MemoryRepo struct {
	mu       sync.RWMutex
	ids      *utilities.IDGenerator
	byID     map[string]*entity.Account
	byEmail  map[string]string
	byHandle map[string]string
	order    []string
}

func NewMemoryRepo(ids *utilities.IDGenerator) *MemoryRepo {
	return &MemoryRepo{
		ids:      ids,
		byID:     make(map[string]*entity.Account),
		byEmail:  make(map[string]string),
		byHandle: make(map[string]string),
	}
}

func (r *MemoryRepo) Insert(ctx context.Context, candidate *entity.Account) (*entity.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !candidate.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", candidate.Role)
	}
	a := *candidate
	if a.ID == "" {
		a.ID = r.ids.Next()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[a.Email]; ok {
		return nil, ErrDuplicateEmail
	}
	if _, ok := r.byHandle[a.Handle]; ok {
		return nil, ErrDuplicateHandle
	}
	if _, ok := r.byID[a.ID]; ok {
		return nil, fmt.Errorf("duplicate id %s", a.ID)
	}
	r.byID[a.ID] = &a
	r.byEmail[a.Email] = a.ID
	r.byHandle[a.Handle] = a.ID
	r.order = append(r.order, a.ID)
	out := a
	return &out, nil
}

func (r *MemoryRepo) FindByHandleOrEmail(ctx context.Context, handle, email string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byEmail[email]; ok {
		return r.copyOf(id), nil
	}
	if id, ok := r.byHandle[handle]; ok {
		return r.copyOf(id), nil
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byEmail[email]; ok {
		return r.copyOf(id), nil
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byID[id]; !ok {
		return nil, ErrNotFound
	}
	return r.copyOf(id), nil
}

func (r *MemoryRepo) UpdateRole(ctx context.Context, id string, role entity.Role) (*entity.Account, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Role = role
	a.UpdatedAt = time.Now().UTC()
	return r.copyOf(id), nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.copyOf(id))
	}
	return out, nil
}

// copyOf must be called with the lock held.
func (r *MemoryRepo) copyOf(id string) *entity.Account {
	a := *r.byID[id]
	return &a
}
