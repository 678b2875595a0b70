package guard_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atrium-hq/atrium/internal/guard"
	"github.com/atrium-hq/atrium/internal/registry"
	"github.com/atrium-hq/atrium/internal/shared"
	_ "github.com/atrium-hq/atrium/testing"
)

type stubFetcher struct {
	mu          sync.Mutex
	fetchCalls  int
	updateCalls int
	snapshot    guard.Snapshot
	fetchErr    error
	updateErr   error
	block       chan struct{}
	entered     chan struct{}
}

func (s *stubFetcher) FetchPermissions(ctx context.Context, userID int64) (guard.Snapshot, error) {
	s.mu.Lock()
	s.fetchCalls++
	entered := s.entered
	block := s.block
	s.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if s.fetchErr != nil {
		return guard.Snapshot{}, s.fetchErr
	}
	return s.snapshot, nil
}

func (s *stubFetcher) UpdatePermissions(ctx context.Context, userID int64, codes []string) error {
	s.mu.Lock()
	s.updateCalls++
	s.mu.Unlock()
	return s.updateErr
}

func (s *stubFetcher) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func userSnapshot() guard.Snapshot {
	return guard.Snapshot{
		Role: registry.RoleUser,
		Permissions: []string{
			shared.PermDashboardView,
			shared.PermProfileView,
			shared.PermProfileEdit,
			shared.PermAppointmentsView,
		},
	}
}

func TestFailClosedBeforeAuthResolves(t *testing.T) {
	g := guard.New(&stubFetcher{snapshot: userSnapshot()}, nil)

	if g.State() != guard.AuthPending {
		t.Fatalf("state = %s, want auth_pending", g.State())
	}
	if g.HasPermission(shared.PermDashboardView) {
		t.Fatal("checks before auth resolution must be denied")
	}
}

func TestAuthReadyWithoutIdentity(t *testing.T) {
	fetcher := &stubFetcher{snapshot: userSnapshot()}
	g := guard.New(fetcher, nil)

	err := g.AuthReady(context.Background(), nil)
	if !errors.Is(err, guard.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if g.State() != guard.PermissionsError {
		t.Fatalf("state = %s, want permissions_error", g.State())
	}
	if fetcher.fetches() != 0 {
		t.Fatal("no fetch should be issued without an identity")
	}
	if g.HasPermission(shared.PermDashboardView) {
		t.Fatal("missing identity must fail closed")
	}
}

func TestLoadedSnapshotDrivesPredicates(t *testing.T) {
	g := guard.New(&stubFetcher{snapshot: userSnapshot()}, nil)

	if err := g.AuthReady(context.Background(), &guard.Identity{UserID: 3, Role: registry.RoleUser}); err != nil {
		t.Fatalf("auth ready: %v", err)
	}
	if g.State() != guard.PermissionsLoaded {
		t.Fatalf("state = %s, want permissions_loaded", g.State())
	}

	if !g.HasPermission(shared.PermDashboardView) {
		t.Fatal("loaded permission should pass")
	}
	if g.HasPermission(shared.PermCustomersEdit) {
		t.Fatal("absent permission should fail")
	}
	if !g.HasAnyPermission(shared.PermCustomersEdit, shared.PermProfileView) {
		t.Fatal("any-of with one held code should pass")
	}
	if g.HasAllPermissions(shared.PermProfileView, shared.PermCustomersEdit) {
		t.Fatal("all-of with one missing code should fail")
	}
	if !g.HasAllPermissions(shared.PermProfileView, shared.PermProfileEdit) {
		t.Fatal("all-of with every code held should pass")
	}
}

func TestAdminShortCircuitsEvenOnFetchError(t *testing.T) {
	fetcher := &stubFetcher{fetchErr: errors.New("backend down")}
	g := guard.New(fetcher, nil)

	err := g.AuthReady(context.Background(), &guard.Identity{UserID: 1, Role: registry.RoleAdmin})
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if g.State() != guard.PermissionsError {
		t.Fatalf("state = %s, want permissions_error", g.State())
	}
	if !g.HasPermission(shared.PermPermissionsManage) {
		t.Fatal("admin identity bypasses snapshot state")
	}
}

func TestFetchErrorFailsClosedAndKeepsRole(t *testing.T) {
	fetcher := &stubFetcher{snapshot: userSnapshot()}
	g := guard.New(fetcher, nil)
	if err := g.AuthReady(context.Background(), &guard.Identity{UserID: 3, Role: registry.RoleUser}); err != nil {
		t.Fatalf("auth ready: %v", err)
	}

	fetcher.mu.Lock()
	fetcher.fetchErr = errors.New("backend down")
	fetcher.mu.Unlock()

	if err := g.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh to surface the fetch error")
	}
	if g.State() != guard.PermissionsError {
		t.Fatalf("state = %s, want permissions_error", g.State())
	}
	if g.HasPermission(shared.PermDashboardView) {
		t.Fatal("errored state must fail closed")
	}
	if g.Role() != registry.RoleUser {
		t.Fatalf("role = %s, want previously known role", g.Role())
	}
}

func TestMalformedPayload(t *testing.T) {
	fetcher := &stubFetcher{snapshot: guard.Snapshot{Role: registry.RoleUser, Permissions: nil}}
	g := guard.New(fetcher, nil)

	err := g.AuthReady(context.Background(), &guard.Identity{UserID: 3, Role: registry.RoleUser})
	if !errors.Is(err, guard.ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
	if g.State() != guard.PermissionsError {
		t.Fatalf("state = %s, want permissions_error", g.State())
	}
}

func TestConcurrentRefreshesShareOneFetch(t *testing.T) {
	fetcher := &stubFetcher{
		snapshot: userSnapshot(),
		block:    make(chan struct{}),
		entered:  make(chan struct{}, 2),
	}
	g := guard.New(fetcher, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = g.AuthReady(context.Background(), &guard.Identity{UserID: 3, Role: registry.RoleUser})
	}()

	// Wait for the first fetch to be in flight, then issue a second refresh
	// that must join it instead of dialing again.
	<-fetcher.entered
	go func() {
		defer wg.Done()
		_ = g.Refresh(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	if got := fetcher.fetches(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
	if g.State() != guard.PermissionsLoaded {
		t.Fatalf("state = %s, want permissions_loaded", g.State())
	}
}

func TestUpdatePermissionsOptimisticallyReplacesState(t *testing.T) {
	fetcher := &stubFetcher{snapshot: userSnapshot()}
	g := guard.New(fetcher, nil)
	if err := g.AuthReady(context.Background(), &guard.Identity{UserID: 3, Role: registry.RoleUser}); err != nil {
		t.Fatalf("auth ready: %v", err)
	}
	before := fetcher.fetches()

	newSet := []string{shared.PermDashboardView, shared.PermCustomersView}
	if err := g.UpdatePermissions(context.Background(), newSet); err != nil {
		t.Fatalf("update: %v", err)
	}

	if !g.HasPermission(shared.PermCustomersView) {
		t.Fatal("granted code should be visible immediately")
	}
	if g.HasPermission(shared.PermProfileView) {
		t.Fatal("dropped code should be denied immediately")
	}
	if fetcher.fetches() != before {
		t.Fatal("optimistic update must not refetch")
	}
}

func TestUpdatePermissionsFailureIsLoud(t *testing.T) {
	fetcher := &stubFetcher{snapshot: userSnapshot(), updateErr: errors.New("rejected")}
	g := guard.New(fetcher, nil)
	if err := g.AuthReady(context.Background(), &guard.Identity{UserID: 3, Role: registry.RoleUser}); err != nil {
		t.Fatalf("auth ready: %v", err)
	}

	if err := g.UpdatePermissions(context.Background(), []string{shared.PermCustomersEdit}); err == nil {
		t.Fatal("update failure must propagate, not fail closed")
	}
	if g.HasPermission(shared.PermCustomersEdit) {
		t.Fatal("failed update must leave local state untouched")
	}
	if !g.HasPermission(shared.PermDashboardView) {
		t.Fatal("failed update must not drop existing permissions")
	}
}

func TestUpdateWithoutIdentity(t *testing.T) {
	g := guard.New(&stubFetcher{}, nil)
	if err := g.UpdatePermissions(context.Background(), nil); !errors.Is(err, guard.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
}
