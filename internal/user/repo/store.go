package repo

import (
	"context"
	"errors"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
)

var (
	ErrNotFound        = errors.New("account not found")
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrDuplicateHandle = errors.New("handle already exists")
)

// Store persists accounts. Insert must enforce handle and email uniqueness
// in the same atomic step that writes the row: of two concurrent inserts
// sharing an identity key exactly one succeeds and the other gets
// ErrDuplicateEmail or ErrDuplicateHandle.
type Store interface {
	// FindByHandleOrEmail prefers a row matching email over one matching handle.
	FindByHandleOrEmail(ctx context.Context, handle, email string) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	// Insert assigns the id when the candidate has none.
	Insert(ctx context.Context, candidate *entity.Account) (*entity.Account, error)
	UpdateRole(ctx context.Context, id string, role entity.Role) (*entity.Account, error)
	List(ctx context.Context) ([]*entity.Account, error)
}

var (
	_ Store = (*UserRepo)(nil)
	_ Store = (*MemoryRepo)(nil)
)
