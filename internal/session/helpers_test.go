package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eternisai/groupspend-sync/internal/api"
	"github.com/eternisai/groupspend-sync/internal/logger"
)

type fakeBackend struct {
	mu           sync.Mutex
	refreshCalls int
	logoutCalls  int

	loginFn    func(ctx context.Context, req api.LoginRequest) (api.TokenPair, error)
	registerFn func(ctx context.Context, req api.RegisterRequest) (api.TokenPair, error)
	profileFn  func(ctx context.Context) (api.UserProfile, error)
	refreshFn  func(ctx context.Context, refreshToken string) (api.TokenPair, error)
	logoutFn   func(ctx context.Context, refreshToken string) error
}

func (f *fakeBackend) Login(ctx context.Context, req api.LoginRequest) (api.TokenPair, error) {
	if f.loginFn == nil {
		return api.TokenPair{}, errors.New("login not configured")
	}
	return f.loginFn(ctx, req)
}

func (f *fakeBackend) Register(ctx context.Context, req api.RegisterRequest) (api.TokenPair, error) {
	if f.registerFn == nil {
		return api.TokenPair{}, errors.New("register not configured")
	}
	return f.registerFn(ctx, req)
}

func (f *fakeBackend) GetProfile(ctx context.Context) (api.UserProfile, error) {
	if f.profileFn == nil {
		return api.UserProfile{ID: "u-1", Name: "Ada", Email: "ada@example.com"}, nil
	}
	return f.profileFn(ctx)
}

func (f *fakeBackend) RefreshToken(ctx context.Context, refreshToken string) (api.TokenPair, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshFn == nil {
		return api.TokenPair{}, errors.New("refresh not configured")
	}
	return f.refreshFn(ctx, refreshToken)
}

func (f *fakeBackend) Logout(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	if f.logoutFn == nil {
		return nil
	}
	return f.logoutFn(ctx, refreshToken)
}

func (f *fakeBackend) counts() (refresh, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.logoutCalls
}

// recordingStore wraps MemoryStore, counting writes and injecting failures.
type recordingStore struct {
	*MemoryStore

	mu     sync.Mutex
	writes int

	saveTokensErr error
	saveUserErr   error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: NewMemoryStore()}
}

func (s *recordingStore) SaveTokens(ctx context.Context, accessToken, refreshToken string) error {
	s.mu.Lock()
	s.writes++
	err := s.saveTokensErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.SaveTokens(ctx, accessToken, refreshToken)
}

func (s *recordingStore) SaveUser(ctx context.Context, user api.UserProfile) error {
	s.mu.Lock()
	s.writes++
	err := s.saveUserErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.SaveUser(ctx, user)
}

func (s *recordingStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func newTestManager(store Store, backend Backend) *Manager {
	return NewManager(store, backend, logger.Discard())
}

func assertStoreEmpty(t *testing.T, store Store) {
	t.Helper()
	p, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.AccessToken != "" || p.RefreshToken != "" || p.User != nil {
		t.Errorf("store not empty: %+v", p)
	}
}

// assertInvariant checks that Authenticated holds exactly when both tokens and a user are present.
func assertInvariant(t *testing.T, s Session) {
	t.Helper()
	complete := s.AccessToken != "" && s.RefreshToken != "" && s.User != nil
	if s.Authenticated() != complete {
		t.Errorf("invariant violated: status %s with session %+v", s.Status, s)
	}
}
