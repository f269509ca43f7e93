package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"identity-server/internal/domain"
	"identity-server/internal/mail"
	"identity-server/internal/repository"
	"identity-server/pkg/hash"
	"identity-server/pkg/jwt"
)

type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
	rev   int
	// failUpdate, when set, is returned by every Update.
	failUpdate error
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) nextRev() string {
	m.rev++
	return strconv.Itoa(m.rev)
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return repository.ErrConflict
		}
		if user.Email != "" && strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrConflict
		}
	}

	user.Type = domain.UserDocType
	user.Rev = m.nextRev()
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.users[id]; ok {
		found := *user
		return &found, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return m.findBy(func(u *domain.User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.findBy(func(u *domain.User) bool { return u.Email != "" && strings.EqualFold(u.Email, email) })
}

func (m *mockUserRepository) findBy(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if match(user) {
			found := *user
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdate != nil {
		return m.failUpdate
	}

	existing, ok := m.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Rev != user.Rev {
		return repository.ErrConflict
	}

	user.Rev = m.nextRev()
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepository) Delete(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, user.ID)
	return nil
}

func (m *mockUserRepository) Search(ctx context.Context, substring string, offset, limit int) ([]*domain.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(substring)
	var matched []*domain.User
	for _, user := range m.users {
		if strings.Contains(strings.ToLower(user.Username), needle) {
			found := *user
			matched = append(matched, &found)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Username < matched[j].Username })

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return matched[offset:end], total, nil
}

func (m *mockUserRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

type mockRefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[token.TokenHash]; ok {
		return repository.ErrConflict
	}
	stored := *token
	m.tokens[token.TokenHash] = &stored
	return nil
}

func (m *mockRefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.tokens[tokenHash]; ok {
		found := *token
		return &found, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockRefreshTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[tokenHash]; !ok {
		return repository.ErrNotFound
	}
	delete(m.tokens, tokenHash)
	return nil
}

func (m *mockRefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for hash, token := range m.tokens {
		if token.UserID == userID {
			delete(m.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockRefreshTokenRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (m *mockRefreshTokenRepository) countFor(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, token := range m.tokens {
		if token.UserID == userID {
			n++
		}
	}
	return n
}

type mockMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *mockMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, msg)
	return nil
}

type mockLedger struct {
	mu       sync.Mutex
	consumed map[string]bool
}

func (l *mockLedger) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consumed == nil {
		l.consumed = make(map[string]bool)
	}
	if l.consumed[tokenID] {
		return false, nil
	}
	l.consumed[tokenID] = true
	return true, nil
}

func (l *mockLedger) Release(ctx context.Context, tokenID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.consumed, tokenID)
	return nil
}

var (
	keysOnce   sync.Once
	accessKeys jwt.KeyPair
	resetKeys  jwt.KeyPair
	hasherOnce sync.Once
	testHasher *hash.Hasher
	setupErr   error
)

func sharedFixtures(t *testing.T) (jwt.KeyPair, jwt.KeyPair, *hash.Hasher) {
	t.Helper()

	keysOnce.Do(func() {
		if accessKeys, setupErr = jwt.GenerateKeyPair(2048); setupErr != nil {
			return
		}
		resetKeys, setupErr = jwt.GenerateKeyPair(2048)
	})
	hasherOnce.Do(func() {
		if setupErr == nil {
			testHasher, setupErr = hash.NewHasher(hash.MinCost)
		}
	})
	if setupErr != nil {
		t.Fatalf("fixture setup failed: %v", setupErr)
	}

	return accessKeys, resetKeys, testHasher
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	users         *mockUserRepository
	refreshTokens *mockRefreshTokenRepository
	mailer        *mockMailer
	ledger        *mockLedger
	clock         *fakeClock
	hasher        *hash.Hasher
	authenticator *Authenticator
	tokens        *TokenService
	gate          *Gate
	auth          *AuthService
	userService   *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	access, reset, hasher := sharedFixtures(t)
	clock := &fakeClock{now: time.Now().Truncate(time.Second)}

	accessSigner, err := jwt.NewSigner(access, AccessAudience, 15*time.Minute, jwt.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSigner(access) error = %v", err)
	}
	resetSigner, err := jwt.NewSigner(reset, ResetAudience, 10*time.Minute, jwt.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSigner(reset) error = %v", err)
	}

	env := &testEnv{
		users:         newMockUserRepository(),
		refreshTokens: newMockRefreshTokenRepository(),
		mailer:        &mockMailer{},
		ledger:        &mockLedger{},
		clock:         clock,
		hasher:        hasher,
	}

	env.tokens, err = NewTokenService(accessSigner, resetSigner, env.refreshTokens)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	env.tokens.now = clock.Now

	env.authenticator = NewAuthenticator(env.users, hasher)
	env.gate = NewGate(env.tokens)
	env.auth = NewAuthService(AuthServiceDeps{
		UserRepo:      env.users,
		Authenticator: env.authenticator,
		Tokens:        env.tokens,
		Hasher:        hasher,
		Mailer:        env.mailer,
		ResetLedger:   env.ledger,
		ResetURL:      "https://id.example.com/reset",
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	env.auth.now = clock.Now
	env.userService = NewUserService(env.users, env.authenticator, env.tokens, hasher)
	env.userService.now = clock.Now

	return env
}

func (e *testEnv) register(t *testing.T, username, email, password string) *domain.UserPublic {
	t.Helper()

	user, err := e.auth.Register(context.Background(), &domain.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	return user
}

// seedUser stores a user with a precomputed hash, skipping bcrypt.
func (e *testEnv) seedUser(t *testing.T, id, username, passwordHash string) {
	t.Helper()

	if err := e.users.Create(context.Background(), &domain.User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
	}); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
}
