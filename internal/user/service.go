package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/repo"
)

// PrivilegePolicy decides whether an email is granted the admin role at signup.
// It is a trust policy, not a security boundary: email ownership is not verified.
type PrivilegePolicy func(email string) bool

// DomainSuffixPolicy grants admin to emails ending with suffix.
func DomainSuffixPolicy(suffix string) PrivilegePolicy {
	return func(email string) bool {
		return suffix != "" && strings.HasSuffix(email, suffix)
	}
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(accountID, email string, role entity.Role) (string, error)
}

// ErrNoTokenIssuer is returned by NewUserService when no issuer is given.
var ErrNoTokenIssuer = errors.New("user service: token issuer is required")

var (
	errEmailTaken  = apperr.Conflict("email", "Email already registered")
	errHandleTaken = apperr.Conflict("username", "Username already taken")
)

// UserService orchestrates registration, authentication and role changes.
// It holds no mutable state; concurrent calls only meet at the store.
type UserService struct {
	repo       userrepo.Store
	hasher     PasswordHasher
	tokens     TokenIssuer
	privileged PrivilegePolicy
	logger     *zap.SugaredLogger
}

// NewUserService wires the service. tokens is required; the other
// collaborators fall back to bcrypt, a policy granting nothing and a no-op logger.
func NewUserService(r userrepo.Store, hasher PasswordHasher, tokens TokenIssuer, privileged PrivilegePolicy, logger *zap.SugaredLogger) (*UserService, error) {
	if tokens == nil {
		return nil, ErrNoTokenIssuer
	}
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if privileged == nil {
		privileged = func(string) bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UserService{repo: r, hasher: hasher, tokens: tokens, privileged: privileged, logger: logger}, nil
}

// Signup validates the credentials and creates an account. It does not
// authenticate the caller; a separate Login is required.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*entity.Account, error) {
	if err := ValidateSignup(in); err != nil {
		return nil, err
	}

	role := entity.RoleUser
	if s.privileged(in.Email) {
		role = entity.RoleAdmin
	}

	// Friendlier error for the common case. The insert below stays the
	// authority on uniqueness.
	existing, err := s.repo.FindByHandleOrEmail(ctx, in.Handle, in.Email)
	switch {
	case err == nil:
		if existing.Email == in.Email {
			return nil, errEmailTaken
		}
		return nil, errHandleTaken
	case !errors.Is(err, userrepo.ErrNotFound):
		return nil, apperr.Internal(fmt.Errorf("lookup identity: %w", err))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	a, err := s.repo.Insert(ctx, &entity.Account{
		DisplayName:  in.Handle,
		Handle:       in.Handle,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
	})
	switch {
	case errors.Is(err, userrepo.ErrDuplicateEmail):
		return nil, errEmailTaken
	case errors.Is(err, userrepo.ErrDuplicateHandle):
		return nil, errHandleTaken
	case err != nil:
		return nil, apperr.Internal(fmt.Errorf("insert account: %w", err))
	}

	if role == entity.RoleAdmin {
		s.logger.Infow("admin role granted by email domain policy", "account_id", a.ID)
	}
	s.logger.Infow("account registered", "account_id", a.ID, "role", a.Role)
	return a, nil
}

// Login checks the credentials and returns a session token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, in LoginInput) (string, error) {
	if err := ValidateLogin(in); err != nil {
		return "", err
	}

	a, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return "", apperr.InvalidCredentials()
		} // avoid user enumeration
		return "", apperr.Internal(fmt.Errorf("lookup email: %w", err))
	}

	if !s.hasher.Verify(a.PasswordHash, in.Password) {
		return "", apperr.InvalidCredentials()
	}

	token, err := s.tokens.Issue(a.ID, a.Email, a.Role)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("issue token: %w", err))
	}
	s.logger.Debugw("login succeeded", "account_id", a.ID)
	return token, nil
}

// Promote grants the admin role. Callers must already be admitted as admin by
// the access guard. Promoting an admin is a successful no-op.
func (s *UserService) Promote(ctx context.Context, id string) (*entity.Account, error) {
	a, err := s.repo.UpdateRole(ctx, id, entity.RoleAdmin)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(fmt.Errorf("update role: %w", err))
	}
	s.logger.Infow("account promoted", "account_id", a.ID)
	return a, nil
}

// Profile returns the public view of one account.
func (s *UserService) Profile(ctx context.Context, id string) (entity.Profile, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return entity.Profile{}, apperr.NotFound("User not found")
		}
		return entity.Profile{}, apperr.Internal(fmt.Errorf("find account: %w", err))
	}
	return a.Profile(), nil
}

// Profiles lists the public view of every account.
func (s *UserService) Profiles(ctx context.Context) ([]entity.Profile, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list accounts: %w", err))
	}
	out := make([]entity.Profile, 0, len(all))
	for _, a := range all {
		out = append(out, a.Profile())
	}
	return out, nil
}
