package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/session"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-civic-auth/pkg/utilities"
)

type fixture struct {
	svc    *UserService
	repo   *userrepo.MemoryRepo
	issuer *session.Issuer
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	repo := userrepo.NewMemoryRepo(utilities.NewIDGenerator(1))
	iss := session.NewIssuer("test-secret", time.Hour)
	svc, err := NewUserService(repo, BcryptHasher{Cost: bcrypt.MinCost}, iss, DomainSuffixPolicy("@admin.com"), zap.New(core).Sugar())
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, issuer: iss, logs: logs}
}

// newBareService uses the defaults for every optional collaborator.
func newBareService(t *testing.T, repo userrepo.Store, hasher PasswordHasher) *UserService {
	t.Helper()
	svc, err := NewUserService(repo, hasher, session.NewIssuer("test-secret", time.Hour), nil, nil)
	require.NoError(t, err)
	return svc
}

func TestNewUserService_RequiresIssuer(t *testing.T) {
	repo := userrepo.NewMemoryRepo(utilities.NewIDGenerator(1))
	svc, err := NewUserService(repo, nil, nil, nil, nil)
	assert.Nil(t, svc)
	assert.ErrorIs(t, err, ErrNoTokenIssuer)
}

func TestDomainSuffixPolicy(t *testing.T) {
	p := DomainSuffixPolicy("@admin.com")
	assert.True(t, p("boss@admin.com"))
	assert.False(t, p("boss@admin.com.evil.org"))
	assert.False(t, p("citizen@example.com"))
	assert.False(t, DomainSuffixPolicy("")("anyone@admin.com"))
}

func TestSignupThenLogin(t *testing.T) {
	cases := []struct {
		in   SignupInput
		role entity.Role
	}{
		{SignupInput{"citizen1", "citizen1@example.com", "abc123!"}, entity.RoleUser},
		{SignupInput{"mayor2024", "mayor@admin.com", "s3cure?pw"}, entity.RoleAdmin},
	}
	for _, tc := range cases {
		t.Run(tc.in.Handle, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			a, err := f.svc.Signup(ctx, tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.role, a.Role)
			assert.Equal(t, tc.in.Handle, a.DisplayName)
			assert.NotEqual(t, tc.in.Password, a.PasswordHash)

			tok, err := f.svc.Login(ctx, LoginInput{Email: tc.in.Email, Password: tc.in.Password})
			require.NoError(t, err)

			claims, err := f.issuer.Verify(tok)
			require.NoError(t, err)
			assert.Equal(t, a.ID, claims.AccountID)
			assert.Equal(t, tc.in.Email, claims.Email)
			assert.Equal(t, tc.role, claims.Role)
		})
	}
}

func TestSignup_ValidationFailsBeforeStore(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Signup(context.Background(), SignupInput{"ab", "a@example.com", "abc123!"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	all, err := f.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSignup_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, SignupInput{"citizen1", "citizen1@example.com", "abc123!"})
	require.NoError(t, err)

	_, err = f.svc.Signup(ctx, SignupInput{"citizen1", "other@example.com", "abc123!"})
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, apperr.KindConflict, e.Kind)
	assert.Equal(t, "Username already taken", e.Message)

	_, err = f.svc.Signup(ctx, SignupInput{"someone2", "citizen1@example.com", "abc123!"})
	assert.Equal(t, "Email already registered", apperr.From(err).Message)

	// both collide: email is reported
	_, err = f.svc.Signup(ctx, SignupInput{"citizen1", "citizen1@example.com", "abc123!"})
	assert.Equal(t, "Email already registered", apperr.From(err).Message)
}

// racyStore hides existing rows from the pre-check, as a concurrent signup would.
type racyStore struct {
	*userrepo.MemoryRepo
}

func (racyStore) FindByHandleOrEmail(context.Context, string, string) (*entity.Account, error) {
	return nil, userrepo.ErrNotFound
}

func TestSignup_InsertIsTheUniquenessAuthority(t *testing.T) {
	repo := racyStore{userrepo.NewMemoryRepo(utilities.NewIDGenerator(1))}
	svc := newBareService(t, repo, BcryptHasher{Cost: bcrypt.MinCost})
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{"citizen1", "citizen1@example.com", "abc123!"})
	require.NoError(t, err)

	_, err = svc.Signup(ctx, SignupInput{"citizen1", "other@example.com", "abc123!"})
	assert.Equal(t, "Username already taken", apperr.From(err).Message)

	_, err = svc.Signup(ctx, SignupInput{"other1", "citizen1@example.com", "abc123!"})
	assert.Equal(t, "Email already registered", apperr.From(err).Message)
}

func TestSignup_ConcurrentSameIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.svc.Signup(ctx, SignupInput{fmt.Sprintf("racer%d", i), "same@example.com", "abc123!"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if apperr.Is(err, apperr.KindConflict) {
				conflicts++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestLogin_InvalidCredentialsAreUniform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, SignupInput{"citizen1", "citizen1@example.com", "abc123!"})
	require.NoError(t, err)

	_, errUnknown := f.svc.Login(ctx, LoginInput{"nobody@example.com", "abc123!"})
	_, errWrong := f.svc.Login(ctx, LoginInput{"citizen1@example.com", "wrong123!"})

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, apperr.From(errUnknown).Kind, apperr.From(errWrong).Kind)
	assert.Equal(t, apperr.From(errUnknown).Message, apperr.From(errWrong).Message)
	assert.Equal(t, "Invalid credentials", apperr.From(errWrong).Message)
}

func TestLogin_MalformedInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), LoginInput{"bad", "abc123!"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestPromote_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Signup(ctx, SignupInput{"citizen1", "citizen1@example.com", "abc123!"})
	require.NoError(t, err)
	require.Equal(t, entity.RoleUser, a.Role)

	for i := 0; i < 2; i++ {
		got, err := f.svc.Promote(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.RoleAdmin, got.Role)
	}

	p, err := f.svc.Profile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, p.Role)
}

func TestPromote_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Promote(context.Background(), "missing")
	e := apperr.From(err)
	assert.Equal(t, apperr.KindNotFound, e.Kind)
	assert.Equal(t, "User not found", e.Message)
}

func TestProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, SignupInput{"citizen1", "citizen1@example.com", "abc123!"})
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, SignupInput{"mayor1", "mayor@admin.com", "abc123!"})
	require.NoError(t, err)

	ps, err := f.svc.Profiles(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "citizen1", ps[0].Name)
	assert.Equal(t, entity.RoleAdmin, ps[1].Role)

	_, err = f.svc.Profile(ctx, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// brokenStore fails every call the way an unreachable database would.
type brokenStore struct{ userrepo.Store }

var errDown = errors.New("dial tcp 10.0.0.5:5432: connection refused")

func (brokenStore) FindByHandleOrEmail(context.Context, string, string) (*entity.Account, error) {
	return nil, errDown
}
func (brokenStore) FindByEmail(context.Context, string) (*entity.Account, error) { return nil, errDown }
func (brokenStore) UpdateRole(context.Context, string, entity.Role) (*entity.Account, error) {
	return nil, errDown
}

func TestStoreFailuresAreInternal(t *testing.T) {
	svc := newBareService(t, brokenStore{}, BcryptHasher{Cost: bcrypt.MinCost})
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{"citizen1", "citizen1@example.com", "abc123!"})
	e := apperr.From(err)
	assert.Equal(t, apperr.KindInternal, e.Kind)
	assert.NotContains(t, e.Message, "10.0.0.5")
	assert.ErrorIs(t, err, errDown)

	_, err = svc.Login(ctx, LoginInput{"citizen1@example.com", "abc123!"})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	_, err = svc.Promote(ctx, "1")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

type failingHasher struct{ BcryptHasher }

func (failingHasher) Hash(string) (string, error) { return "", errors.New("entropy exhausted") }

func TestSignup_HashFailureIsFatal(t *testing.T) {
	repo := userrepo.NewMemoryRepo(utilities.NewIDGenerator(1))
	svc := newBareService(t, repo, failingHasher{})

	_, err := svc.Signup(context.Background(), SignupInput{"citizen1", "citizen1@example.com", "abc123!"})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLogsNeverCarryCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, SignupInput{"mayor1", "mayor@admin.com", "abc123!"})
	require.NoError(t, err)
	tok, err := f.svc.Login(ctx, LoginInput{"mayor@admin.com", "abc123!"})
	require.NoError(t, err)
	_, _ = f.svc.Login(ctx, LoginInput{"mayor@admin.com", "wrong123!"})

	require.NotZero(t, f.logs.Len())
	assert.Equal(t, 1, f.logs.FilterMessage("admin role granted by email domain policy").Len())
	for _, entry := range f.logs.All() {
		for _, v := range entry.ContextMap() {
			s := fmt.Sprint(v)
			assert.NotContains(t, s, "abc123!")
			assert.NotContains(t, s, "wrong123!")
			assert.NotContains(t, s, tok)
		}
	}
}
