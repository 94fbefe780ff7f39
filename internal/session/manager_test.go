package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/groupspend-sync/internal/api"
	"github.com/eternisai/groupspend-sync/internal/auth/authtest"
	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
)

func TestManager_LoginRejectsInvalidCredentials(t *testing.T) {
	valid := authtest.Token(t, "u-1")

	tests := []struct {
		name         string
		accessToken  string
		refreshToken string
	}{
		{"empty access token", "", "rt"},
		{"empty refresh token", valid, ""},
		{"malformed access token", "not-a-token", "rt"},
		{"access token without subject", authtest.Token(t, ""), "rt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newRecordingStore()
			m := newTestManager(store, &fakeBackend{})

			err := m.Login(context.Background(), tt.accessToken, tt.refreshToken)
			if !errors.Is(err, apperrors.ErrInvalidCredentials) {
				t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
			}
			if store.writeCount() != 0 {
				t.Errorf("store writes = %d, want 0", store.writeCount())
			}
			assertStoreEmpty(t, store)
		})
	}
}

func TestManager_LoginThenInitialize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	access := authtest.Token(t, "u-1")

	backend := &fakeBackend{
		profileFn: func(ctx context.Context) (api.UserProfile, error) {
			if got := api.AccessTokenFromContext(ctx); got != access {
				t.Errorf("profile fetched with token %q, want login token", got)
			}
			return api.UserProfile{ID: "u-1", Name: "Ada", Email: "ada@example.com"}, nil
		},
	}

	first := newTestManager(store, backend)
	if err := first.Login(ctx, access, "rt-1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	before := first.Session()
	assertInvariant(t, before)

	reloaded := newTestManager(store, backend)
	if err := reloaded.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	after := reloaded.Session()

	if !after.Authenticated() {
		t.Fatalf("status = %s, want authenticated", after.Status)
	}
	if after.AccessToken != before.AccessToken || after.RefreshToken != before.RefreshToken {
		t.Errorf("tokens changed across reload")
	}
	if *after.User != *before.User {
		t.Errorf("user = %+v, want %+v", *after.User, *before.User)
	}
	assertInvariant(t, after)
}

func TestManager_LoginRollsBackWhenProfileFails(t *testing.T) {
	store := NewMemoryStore()
	backend := &fakeBackend{
		profileFn: func(ctx context.Context) (api.UserProfile, error) {
			return api.UserProfile{}, apperrors.Network("GET /users/me", errors.New("connection refused"))
		},
	}
	m := newTestManager(store, backend)

	err := m.Login(context.Background(), authtest.Token(t, "u-1"), "rt")
	if !errors.Is(err, apperrors.ErrNetwork) {
		t.Fatalf("Login() error = %v, want ErrNetwork", err)
	}

	s := m.Session()
	if s.Status != StatusUnauthenticated {
		t.Errorf("status = %s, want unauthenticated", s.Status)
	}
	assertInvariant(t, s)
	assertStoreEmpty(t, store)
}

func TestManager_LoginRollsBackWhenUserPersistenceFails(t *testing.T) {
	store := newRecordingStore()
	store.saveUserErr = errors.New("disk full")
	m := newTestManager(store, &fakeBackend{})

	err := m.Login(context.Background(), authtest.Token(t, "u-1"), "rt")
	if !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("Login() error = %v, want ErrPersistence", err)
	}
	assertStoreEmpty(t, store)
	assertInvariant(t, m.Session())
}

func TestManager_LoginWithPassword(t *testing.T) {
	access := authtest.Token(t, "u-1")
	backend := &fakeBackend{
		loginFn: func(ctx context.Context, req api.LoginRequest) (api.TokenPair, error) {
			if req.Email != "ada@example.com" || req.Password != "secret" {
				return api.TokenPair{}, apperrors.ErrUnauthorized
			}
			return api.TokenPair{AccessToken: access, RefreshToken: "rt"}, nil
		},
	}
	m := newTestManager(NewMemoryStore(), backend)

	if err := m.LoginWithPassword(context.Background(), "ada@example.com", "wrong"); !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Fatalf("LoginWithPassword(wrong) error = %v, want ErrInvalidCredentials", err)
	}
	if err := m.LoginWithPassword(context.Background(), "ada@example.com", "secret"); err != nil {
		t.Fatalf("LoginWithPassword() error = %v", err)
	}
	if !m.Session().Authenticated() {
		t.Errorf("status = %s, want authenticated", m.Session().Status)
	}
}

func TestManager_InitializeProfileUnauthorized(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.SaveTokens(ctx, authtest.Token(t, "u-1"), "rt")
	_ = store.SaveUser(ctx, api.UserProfile{ID: "u-1"})

	backend := &fakeBackend{
		profileFn: func(ctx context.Context) (api.UserProfile, error) {
			return api.UserProfile{}, apperrors.ErrUnauthorized
		},
	}
	m := newTestManager(store, backend)

	if err := m.Initialize(ctx); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("Initialize() error = %v, want ErrUnauthorized", err)
	}
	if s := m.Session(); s.Status != StatusUnauthenticated {
		t.Errorf("status = %s, want unauthenticated", s.Status)
	}
	assertStoreEmpty(t, store)
}

func TestManager_InitializeStoredState(t *testing.T) {
	tests := []struct {
		name    string
		access  func(t *testing.T) string
		refresh string
		wantErr error
	}{
		{
			name:   "nothing stored",
			access: func(t *testing.T) string { return "" },
		},
		{
			name:    "undecodable token",
			access:  func(t *testing.T) string { return "garbage" },
			refresh: "rt",
			wantErr: apperrors.ErrInvalidToken,
		},
		{
			name:    "token without subject",
			access:  func(t *testing.T) string { return authtest.Token(t, "") },
			refresh: "rt",
			wantErr: apperrors.ErrInvalidToken,
		},
		{
			name:    "missing refresh token",
			access:  func(t *testing.T) string { return authtest.Token(t, "u-1") },
			wantErr: apperrors.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			_ = store.SaveTokens(ctx, tt.access(t), tt.refresh)

			backend := &fakeBackend{
				profileFn: func(ctx context.Context) (api.UserProfile, error) {
					t.Error("profile must not be fetched")
					return api.UserProfile{}, nil
				},
			}
			m := newTestManager(store, backend)

			err := m.Initialize(ctx)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Initialize() error = %v, want %v", err, tt.wantErr)
			}
			if s := m.Session(); s.Status != StatusUnauthenticated {
				t.Errorf("status = %s, want unauthenticated", s.Status)
			}
			assertStoreEmpty(t, store)
		})
	}
}

func TestManager_InitializeRunsOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.SaveTokens(ctx, authtest.Token(t, "u-1"), "rt")

	calls := 0
	backend := &fakeBackend{
		profileFn: func(ctx context.Context) (api.UserProfile, error) {
			calls++
			return api.UserProfile{ID: "u-1"}, nil
		},
	}
	m := newTestManager(store, backend)

	for i := 0; i < 3; i++ {
		if err := m.Initialize(ctx); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("profile fetches = %d, want 1", calls)
	}
}

func TestManager_InitializeRepersistsProfile(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.SaveTokens(ctx, authtest.Token(t, "u-1"), "rt")
	_ = store.SaveUser(ctx, api.UserProfile{ID: "u-1", Name: "Old"})

	backend := &fakeBackend{
		profileFn: func(ctx context.Context) (api.UserProfile, error) {
			return api.UserProfile{ID: "u-1", Name: "New"}, nil
		},
	}
	m := newTestManager(store, backend)

	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	p, _ := store.Load(ctx)
	if p.User == nil || p.User.Name != "New" {
		t.Errorf("stored user = %+v, want refreshed profile", p.User)
	}
}

func TestManager_LogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	backend := &fakeBackend{
		logoutFn: func(ctx context.Context, refreshToken string) error {
			return errors.New("backend down")
		},
	}
	m := newTestManager(store, backend)

	if err := m.Login(ctx, authtest.Token(t, "u-1"), "rt"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	m.Logout(ctx)
	assertStoreEmpty(t, store)
	m.Logout(ctx)
	assertStoreEmpty(t, store)

	if s := m.Session(); s.Status != StatusUnauthenticated {
		t.Errorf("status = %s, want unauthenticated", s.Status)
	}
	if _, logouts := backend.counts(); logouts != 1 {
		t.Errorf("backend logouts = %d, want 1", logouts)
	}
}

func TestManager_LogoutClearsResidualStorage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.SaveUser(ctx, api.UserProfile{ID: "stale"})

	m := newTestManager(store, &fakeBackend{})
	m.Logout(ctx)

	assertStoreEmpty(t, store)
}

func TestManager_UpdateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("requires session", func(t *testing.T) {
		m := newTestManager(NewMemoryStore(), &fakeBackend{})
		err := m.UpdateUser(ctx, api.UserProfile{ID: "u-1"})
		if !errors.Is(err, apperrors.ErrNotAuthenticated) {
			t.Fatalf("UpdateUser() error = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("persists and updates memory", func(t *testing.T) {
		store := NewMemoryStore()
		m := newTestManager(store, &fakeBackend{})
		access := authtest.Token(t, "u-1")
		if err := m.Login(ctx, access, "rt"); err != nil {
			t.Fatalf("Login() error = %v", err)
		}

		if err := m.UpdateUser(ctx, api.UserProfile{ID: "u-1", Name: "Grace"}); err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}
		if got := m.Session().User.Name; got != "Grace" {
			t.Errorf("memory user name = %q", got)
		}
		p, _ := store.Load(ctx)
		if p.User.Name != "Grace" || p.AccessToken != access {
			t.Errorf("stored = %+v", p)
		}
	})

	t.Run("storage failure leaves memory unchanged", func(t *testing.T) {
		store := newRecordingStore()
		m := newTestManager(store, &fakeBackend{})
		if err := m.Login(ctx, authtest.Token(t, "u-1"), "rt"); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		before := m.Session()

		store.saveUserErr = errors.New("read-only filesystem")
		err := m.UpdateUser(ctx, api.UserProfile{ID: "u-1", Name: "Grace"})
		if !errors.Is(err, apperrors.ErrPersistence) {
			t.Fatalf("UpdateUser() error = %v, want ErrPersistence", err)
		}
		if got := m.Session().User.Name; got != before.User.Name {
			t.Errorf("memory user name = %q, want %q", got, before.User.Name)
		}
	})
}

func TestManager_RefreshSingleFlight(t *testing.T) {
	ctx := context.Background()
	t1 := authtest.TokenWithID(t, "u-1", "1")
	t2 := authtest.TokenWithID(t, "u-1", "2")

	release := make(chan struct{})
	backend := &fakeBackend{
		refreshFn: func(ctx context.Context, refreshToken string) (api.TokenPair, error) {
			<-release
			if refreshToken != "R1" {
				return api.TokenPair{}, apperrors.ErrUnauthorized
			}
			return api.TokenPair{AccessToken: t2, RefreshToken: "R2"}, nil
		},
	}
	store := NewMemoryStore()
	m := newTestManager(store, backend)
	if err := m.Login(ctx, t1, "R1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Refresh(ctx, t1)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: Refresh() error = %v", i, errs[i])
		}
		if results[i] != t2 {
			t.Errorf("caller %d got a token other than the refreshed one", i)
		}
	}
	if refreshes, _ := backend.counts(); refreshes != 1 {
		t.Errorf("backend refreshes = %d, want 1", refreshes)
	}

	p, _ := store.Load(ctx)
	if p.AccessToken != t2 || p.RefreshToken != "R2" {
		t.Errorf("stored tokens not rotated")
	}
	assertInvariant(t, m.Session())
}

func TestManager_RefreshRejectedForcesLogout(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		refreshFn: func(ctx context.Context, refreshToken string) (api.TokenPair, error) {
			return api.TokenPair{}, apperrors.ErrUnauthorized
		},
	}
	store := NewMemoryStore()
	m := newTestManager(store, backend)
	access := authtest.Token(t, "u-1")
	if err := m.Login(ctx, access, "rt"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	var unauthenticated int
	m.Subscribe(func(s Session) {
		if s.Status == StatusUnauthenticated {
			unauthenticated++
		}
	})

	if _, err := m.Refresh(ctx, access); !errors.Is(err, apperrors.ErrRefreshFailed) {
		t.Fatalf("Refresh() error = %v, want ErrRefreshFailed", err)
	}
	if _, err := m.Refresh(ctx, access); !errors.Is(err, apperrors.ErrRefreshFailed) {
		t.Fatalf("second Refresh() error = %v, want ErrRefreshFailed", err)
	}

	if unauthenticated != 1 {
		t.Errorf("forced logouts = %d, want 1", unauthenticated)
	}
	if refreshes, _ := backend.counts(); refreshes != 1 {
		t.Errorf("backend refreshes = %d, want 1", refreshes)
	}
	assertStoreEmpty(t, store)
	assertInvariant(t, m.Session())
}

func TestManager_RefreshReturnsRotatedToken(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	m := newTestManager(NewMemoryStore(), backend)
	current := authtest.TokenWithID(t, "u-1", "current")
	if err := m.Login(ctx, current, "rt"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	got, err := m.Refresh(ctx, authtest.TokenWithID(t, "u-1", "old"))
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got != current {
		t.Errorf("Refresh() returned a token other than the current one")
	}
	if refreshes, _ := backend.counts(); refreshes != 0 {
		t.Errorf("backend refreshes = %d, want 0", refreshes)
	}
}

func TestManager_SubscribeSkipsTokenRotation(t *testing.T) {
	ctx := context.Background()
	t2 := authtest.TokenWithID(t, "u-1", "2")
	backend := &fakeBackend{
		refreshFn: func(ctx context.Context, refreshToken string) (api.TokenPair, error) {
			return api.TokenPair{AccessToken: t2, RefreshToken: "R2"}, nil
		},
	}
	m := newTestManager(NewMemoryStore(), backend)

	var seen []Status
	unsubscribe := m.Subscribe(func(s Session) { seen = append(seen, s.Status) })

	t1 := authtest.TokenWithID(t, "u-1", "1")
	if err := m.Login(ctx, t1, "R1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := m.Refresh(ctx, t1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	m.Logout(ctx)
	unsubscribe()
	_ = m.Login(ctx, t2, "R2")

	want := []Status{StatusAuthenticated, StatusUnauthenticated}
	if len(seen) != len(want) {
		t.Fatalf("notifications = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestManager_Register(t *testing.T) {
	t.Run("success logs in", func(t *testing.T) {
		access := authtest.Token(t, "u-1")
		var got api.RegisterRequest
		backend := &fakeBackend{
			registerFn: func(ctx context.Context, req api.RegisterRequest) (api.TokenPair, error) {
				got = req
				return api.TokenPair{AccessToken: access, RefreshToken: "rt"}, nil
			},
		}
		store := newRecordingStore()
		m := newTestManager(store, backend)

		req := api.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "secret", Currency: "EUR"}
		if err := m.Register(context.Background(), req); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if got != req {
			t.Errorf("backend request = %+v, want %+v", got, req)
		}

		s := m.Session()
		if !s.Authenticated() || s.UserID() != "u-1" {
			t.Errorf("session = %+v, want authenticated as u-1", s)
		}
		assertInvariant(t, s)

		p, err := store.Load(context.Background())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if p.AccessToken != access || p.RefreshToken != "rt" || p.User == nil {
			t.Errorf("stored = %+v", p)
		}
	})

	t.Run("backend error writes nothing", func(t *testing.T) {
		backend := &fakeBackend{
			registerFn: func(ctx context.Context, req api.RegisterRequest) (api.TokenPair, error) {
				return api.TokenPair{}, apperrors.ErrValidation
			},
		}
		store := newRecordingStore()
		m := newTestManager(store, backend)

		err := m.Register(context.Background(), api.RegisterRequest{Email: "taken@example.com", Password: "pw"})
		if !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("Register() error = %v, want ErrValidation", err)
		}
		if n := store.writeCount(); n != 0 {
			t.Errorf("store writes = %d, want 0", n)
		}
		if m.Session().Authenticated() {
			t.Error("session authenticated after failed register")
		}
		assertStoreEmpty(t, store)
	})
}
