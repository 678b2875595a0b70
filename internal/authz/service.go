package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/atrium-hq/atrium/internal/permcache"
	"github.com/atrium-hq/atrium/internal/registry"
	"github.com/atrium-hq/atrium/internal/shared"
	"github.com/atrium-hq/atrium/internal/users"
)

// Service resolves effective permissions: role defaults plus granted
// overrides minus denied overrides. Boolean decisions are cached; every
// mutation invalidates the affected user's cache entries before returning.
//
// Admin accounts cannot carry overrides. Mutations targeting an admin are
// rejected with a validation error rather than stored and ignored.
type Service struct {
	registry *registry.Registry
	cache    *permcache.Cache
	users    users.RepositoryPort
	repo     OverrideRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service. The cache is owned by the caller and
// injected so tests can use isolated instances.
func NewService(reg *registry.Registry, cache *permcache.Cache, userRepo users.RepositoryPort, repo OverrideRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: reg,
		cache:    cache,
		users:    userRepo,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
	}
}

// GetUserPermissions computes the effective permission set for a user. It
// does not consult or populate the decision cache; that is HasPermission's
// job.
func (s *Service) GetUserPermissions(ctx context.Context, userID int64) (UserPermissions, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return UserPermissions{}, err
	}

	if user.Role.IsAdmin() {
		return UserPermissions{UserID: userID, Role: user.Role, Permissions: s.registry.AllCodes()}, nil
	}

	effective := make(map[string]struct{})
	for _, code := range s.registry.PermissionsForRole(user.Role) {
		effective[code] = struct{}{}
	}

	overrides, err := s.repo.FindOverridesForUser(ctx, userID)
	if err != nil {
		return UserPermissions{}, err
	}
	for _, o := range overrides {
		if o.Granted {
			effective[o.PermissionCode] = struct{}{}
		} else {
			delete(effective, o.PermissionCode)
		}
	}

	codes := make([]string, 0, len(effective))
	for code := range effective {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return UserPermissions{UserID: userID, Role: user.Role, Permissions: codes}, nil
}

// HasPermission answers a single boolean decision, cache-first. On a miss the
// effective set is recomputed and the decision written back.
func (s *Service) HasPermission(ctx context.Context, userID int64, code string) (bool, error) {
	if v, ok := s.cache.Get(userID, code); ok {
		return v, nil
	}

	perms, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := perms.Has(code)
	s.cache.Set(userID, code, allowed)
	return allowed, nil
}

// UpdateUserPermissions replaces the user's effective set with exactly the
// given codes, stored as the delta against the role default. Unknown codes
// fail the whole update; nothing is applied.
func (s *Service) UpdateUserPermissions(ctx context.Context, userID int64, codes []string, actorID *int64) error {
	if err := s.validateCodes(codes); err != nil {
		return err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role.IsAdmin() {
		return fmt.Errorf("%w: admin permissions cannot be overridden", shared.ErrValidation)
	}

	requested := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		requested[code] = struct{}{}
	}
	roleDefault := make(map[string]struct{})
	for _, code := range s.registry.PermissionsForRole(user.Role) {
		roleDefault[code] = struct{}{}
	}

	now := s.now().UTC()
	var overrides []Override
	for code := range requested {
		if _, ok := roleDefault[code]; !ok {
			overrides = append(overrides, Override{UserID: userID, PermissionCode: code, Granted: true, GrantedBy: actorID, GrantedAt: now})
		}
	}
	for code := range roleDefault {
		if _, ok := requested[code]; !ok {
			overrides = append(overrides, Override{UserID: userID, PermissionCode: code, Granted: false, GrantedBy: actorID, GrantedAt: now})
		}
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].PermissionCode < overrides[j].PermissionCode })

	if err := s.repo.ReplaceOverrides(ctx, userID, overrides); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)
	return nil
}

// AddUserPermission ensures the user's effective set contains code.
func (s *Service) AddUserPermission(ctx context.Context, userID int64, code string, actorID *int64) error {
	if err := s.validateCodes([]string{code}); err != nil {
		return err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role.IsAdmin() {
		return fmt.Errorf("%w: admin permissions cannot be overridden", shared.ErrValidation)
	}

	if s.inRoleDefault(user.Role, code) {
		// The role already grants it; drop any stored deny.
		if err := s.repo.DeleteOverride(ctx, userID, code); err != nil {
			return err
		}
	} else {
		o := Override{UserID: userID, PermissionCode: code, Granted: true, GrantedBy: actorID, GrantedAt: s.now().UTC()}
		if err := s.repo.UpsertOverride(ctx, o); err != nil {
			return err
		}
	}
	s.cache.InvalidateUser(userID)
	return nil
}

// RemoveUserPermission ensures the user's effective set does not contain code.
func (s *Service) RemoveUserPermission(ctx context.Context, userID int64, code string, actorID *int64) error {
	if err := s.validateCodes([]string{code}); err != nil {
		return err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role.IsAdmin() {
		return fmt.Errorf("%w: admin permissions cannot be overridden", shared.ErrValidation)
	}

	if s.inRoleDefault(user.Role, code) {
		o := Override{UserID: userID, PermissionCode: code, Granted: false, GrantedBy: actorID, GrantedAt: s.now().UTC()}
		if err := s.repo.UpsertOverride(ctx, o); err != nil {
			return err
		}
	} else {
		// Not a default; removing any stored grant is enough.
		if err := s.repo.DeleteOverride(ctx, userID, code); err != nil {
			return err
		}
	}
	s.cache.InvalidateUser(userID)
	return nil
}

// DefaultPermissionsForRole is a pure registry lookup, exposed for "reset to
// role defaults" flows.
func (s *Service) DefaultPermissionsForRole(role registry.Role) []string {
	return s.registry.PermissionsForRole(role)
}

// Catalog returns the full permission catalog.
func (s *Service) Catalog() []registry.Permission {
	return s.registry.All()
}

// CacheStats exposes decision cache counters for operational dashboards.
func (s *Service) CacheStats() permcache.Stats {
	return s.cache.Stats()
}

func (s *Service) validateCodes(codes []string) error {
	var unknown []string
	for _, code := range codes {
		if !s.registry.Known(code) {
			unknown = append(unknown, code)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown permission codes: %s", shared.ErrValidation, strings.Join(unknown, ", "))
	}
	return nil
}

func (s *Service) inRoleDefault(role registry.Role, code string) bool {
	for _, c := range s.registry.PermissionsForRole(role) {
		if c == code {
			return true
		}
	}
	return false
}
