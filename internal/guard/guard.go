// Package guard gives UI and route code synchronous permission predicates on
// top of two asynchronous readiness signals: authentication resolving and the
// permission snapshot arriving. Reads fail closed while either is pending or
// errored; writes propagate their errors so a grant or revoke never silently
// no-ops.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/atrium-hq/atrium/internal/registry"
)

// State describes where the guard is in its readiness lifecycle.
type State int

const (
	// AuthPending means the auth subsystem has not resolved yet.
	AuthPending State = iota
	// PermissionsIdle means auth resolved but no fetch has started.
	PermissionsIdle
	// PermissionsLoading means a snapshot fetch is in flight.
	PermissionsLoading
	// PermissionsLoaded means a snapshot is held and predicates are live.
	PermissionsLoaded
	// PermissionsError means the last fetch failed or no identity exists.
	PermissionsError
)

func (s State) String() string {
	switch s {
	case AuthPending:
		return "auth_pending"
	case PermissionsIdle:
		return "permissions_idle"
	case PermissionsLoading:
		return "permissions_loading"
	case PermissionsLoaded:
		return "permissions_loaded"
	case PermissionsError:
		return "permissions_error"
	default:
		return "unknown"
	}
}

// Typed guard errors.
var (
	// ErrAuthRequired indicates auth resolved without an identity.
	ErrAuthRequired = errors.New("guard: authentication required")
	// ErrMalformedPayload indicates a fetch response without a permissions list.
	ErrMalformedPayload = errors.New("guard: malformed permissions payload")
)

// Identity is the resolved principal supplied by the auth subsystem.
type Identity struct {
	UserID int64
	Role   registry.Role
}

// Guard is the client-side permission facade. All predicate methods are
// synchronous and read current state only; they never trigger a fetch.
type Guard struct {
	fetcher Fetcher
	logger  *slog.Logger
	flight  singleflight.Group

	mu       sync.Mutex
	state    State
	identity *Identity
	perms    map[string]struct{}
	role     registry.Role
	lastErr  error
}

// New constructs a Guard in AuthPending.
func New(fetcher Fetcher, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		fetcher: fetcher,
		logger:  logger,
		state:   AuthPending,
		perms:   make(map[string]struct{}),
	}
}

// AuthReady is the one-way transition out of AuthPending, driven by the auth
// subsystem's lifecycle callback. A nil identity moves straight to
// PermissionsError with ErrAuthRequired; otherwise the permission snapshot is
// fetched for the identity.
func (g *Guard) AuthReady(ctx context.Context, identity *Identity) error {
	g.mu.Lock()
	if identity == nil {
		g.identity = nil
		g.state = PermissionsError
		g.perms = make(map[string]struct{})
		g.lastErr = ErrAuthRequired
		g.mu.Unlock()
		return ErrAuthRequired
	}
	g.identity = identity
	g.role = identity.Role
	g.state = PermissionsIdle
	g.mu.Unlock()

	return g.Refresh(ctx)
}

// Refresh refetches the permission snapshot for the current identity.
// Concurrent refreshes for the same user share one in-flight fetch.
func (g *Guard) Refresh(ctx context.Context) error {
	g.mu.Lock()
	if g.identity == nil {
		g.state = PermissionsError
		g.lastErr = ErrAuthRequired
		g.mu.Unlock()
		return ErrAuthRequired
	}
	userID := g.identity.UserID
	g.state = PermissionsLoading
	g.mu.Unlock()

	result, err, _ := g.flight.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return g.fetcher.FetchPermissions(ctx, userID)
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	// A newer identity may have arrived while this fetch was in flight; its
	// own fetch will overwrite state, so a stale result is simply applied
	// last-write-wins. The payload is a full snapshot, never a delta.
	if err != nil {
		g.state = PermissionsError
		g.perms = make(map[string]struct{})
		g.lastErr = err
		g.logger.Warn("permission fetch failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	snapshot := result.(Snapshot)
	if snapshot.Permissions == nil {
		g.state = PermissionsError
		g.perms = make(map[string]struct{})
		g.lastErr = ErrMalformedPayload
		return ErrMalformedPayload
	}

	perms := make(map[string]struct{}, len(snapshot.Permissions))
	for _, code := range snapshot.Permissions {
		perms[code] = struct{}{}
	}
	g.perms = perms
	if snapshot.Role != "" {
		g.role = snapshot.Role
	}
	g.state = PermissionsLoaded
	g.lastErr = nil
	return nil
}

// HasPermission reports whether the current identity holds code. Admin is
// always true; anything short of a loaded snapshot is false.
func (g *Guard) HasPermission(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.identity != nil && g.role.IsAdmin() {
		return true
	}
	if g.state != PermissionsLoaded {
		return false
	}
	_, ok := g.perms[code]
	return ok
}

// HasAnyPermission reports whether the identity holds at least one code.
func (g *Guard) HasAnyPermission(codes ...string) bool {
	for _, code := range codes {
		if g.HasPermission(code) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the identity holds every code.
func (g *Guard) HasAllPermissions(codes ...string) bool {
	for _, code := range codes {
		if !g.HasPermission(code) {
			return false
		}
	}
	return true
}

// UpdatePermissions submits a replacement permission set for the current
// identity. On success local state is optimistically replaced without a
// refetch; on failure the error propagates and local state is untouched.
func (g *Guard) UpdatePermissions(ctx context.Context, codes []string) error {
	g.mu.Lock()
	if g.identity == nil {
		g.mu.Unlock()
		return ErrAuthRequired
	}
	userID := g.identity.UserID
	g.mu.Unlock()

	if err := g.fetcher.UpdatePermissions(ctx, userID, codes); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	perms := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		perms[code] = struct{}{}
	}
	g.perms = perms
	g.state = PermissionsLoaded
	g.lastErr = nil
	return nil
}

// State returns the current lifecycle state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Role returns the last known role, which survives fetch errors.
func (g *Guard) Role() registry.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.role
}

// Err returns the error behind a PermissionsError state, if any.
func (g *Guard) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}
