package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eternisai/groupspend-sync/internal/api"
	"github.com/eternisai/groupspend-sync/internal/auth/authtest"
	"github.com/eternisai/groupspend-sync/internal/logger"
	"github.com/eternisai/groupspend-sync/internal/metrics"
	"github.com/eternisai/groupspend-sync/internal/session"
)

// rotatingBackend emulates a backend whose refresh tokens are single-use.
type rotatingBackend struct {
	t *testing.T

	mu      sync.Mutex
	access  string
	refresh string
	next    int

	refreshCalls  atomic.Int32
	logoutCalls   atomic.Int32
	rejectRefresh bool
}

func (b *rotatingBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/refresh-token":
		b.refreshCalls.Add(1)
		time.Sleep(10 * time.Millisecond)

		var presented string
		_ = json.NewDecoder(r.Body).Decode(&presented)

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.rejectRefresh || presented != b.refresh {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"meta":[{"code":401,"message":"refresh token revoked"}]}`)
			return
		}
		b.next++
		b.access = authtest.TokenWithID(b.t, "u-1", string(rune('a'+b.next)))
		b.refresh = "R" + string(rune('a'+b.next))
		writeJSON(w, map[string]any{"meta": []any{}, "data": map[string]string{"token": b.access, "refreshToken": b.refresh}})

	case "/auth/logout":
		b.logoutCalls.Add(1)
		writeJSON(w, map[string]any{"meta": []any{}})

	case "/users/me":
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"meta": []any{}, "data": api.UserProfile{ID: "u-1", Name: "Ada", Email: "ada@example.com"}})

	case "/users/me/invites/pending":
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"meta":[{"code":401,"message":"expired"}]}`)
			return
		}
		writeJSON(w, map[string]any{"meta": []any{}, "data": []api.PendingInvite{{ID: "i1"}}})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *rotatingBackend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+b.access
}

func (b *rotatingBackend) expireAccessToken() {
	b.mu.Lock()
	b.access = "expired"
	b.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func setup(t *testing.T, backend *rotatingBackend) (*session.Manager, *api.Client) {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	log := logger.Discard()
	raw := api.NewClient(server.URL, server.Client(), log)
	mgr := session.NewManager(session.NewMemoryStore(), raw, log)
	authed := api.NewClient(server.URL, &http.Client{
		Transport: api.NewAuthTransport(server.Client().Transport, mgr, log),
	}, log)

	backend.mu.Lock()
	backend.access = authtest.TokenWithID(t, "u-1", "a")
	backend.refresh = "Ra"
	access, refresh := backend.access, backend.refresh
	backend.mu.Unlock()

	if err := mgr.Login(context.Background(), access, refresh); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return mgr, authed
}

func TestConcurrentUnauthorizedRequestsShareOneRefresh(t *testing.T) {
	backend := &rotatingBackend{t: t}
	mgr, authed := setup(t, backend)
	backend.expireAccessToken()
	successBefore := testutil.ToFloat64(metrics.TokenRefreshTotal.WithLabelValues("success"))

	const requests = 6
	var wg sync.WaitGroup
	errs := make([]error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = authed.PendingInvites(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if s := mgr.Session(); !s.Authenticated() || s.RefreshToken != "Rb" {
		t.Errorf("session = %s with refresh token %q", s.Status, s.RefreshToken)
	}
	if got := testutil.ToFloat64(metrics.TokenRefreshTotal.WithLabelValues("success")) - successBefore; got != 1 {
		t.Errorf("token_refresh_total{result=success} grew by %v, want 1", got)
	}
}

func TestRejectedRefreshLogsOutOnce(t *testing.T) {
	backend := &rotatingBackend{t: t}
	mgr, authed := setup(t, backend)
	backend.expireAccessToken()
	backend.mu.Lock()
	backend.rejectRefresh = true
	backend.mu.Unlock()

	forcedBefore := testutil.ToFloat64(metrics.ForcedLogoutsTotal)
	rejectedBefore := testutil.ToFloat64(metrics.TokenRefreshTotal.WithLabelValues("rejected"))

	var logouts atomic.Int32
	mgr.Subscribe(func(s session.Session) {
		if s.Status == session.StatusUnauthenticated {
			logouts.Add(1)
		}
	})

	const requests = 4
	var wg sync.WaitGroup
	errs := make([]error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = authed.PendingInvites(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		var rerr *api.ResponseError
		if !errors.As(err, &rerr) || rerr.StatusCode != http.StatusUnauthorized {
			t.Errorf("request %d: error = %v, want original 401", i, err)
		}
	}
	if got := logouts.Load(); got != 1 {
		t.Errorf("forced logouts = %d, want 1", got)
	}
	if mgr.Session().Status != session.StatusUnauthenticated {
		t.Errorf("status = %s", mgr.Session().Status)
	}
	if got := testutil.ToFloat64(metrics.ForcedLogoutsTotal) - forcedBefore; got != 1 {
		t.Errorf("forced_logouts_total grew by %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.TokenRefreshTotal.WithLabelValues("rejected")) - rejectedBefore; got != 1 {
		t.Errorf("token_refresh_total{result=rejected} grew by %v, want 1", got)
	}
}
