package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/registry"
)

// Snapshot is the authoritative permission payload for one user.
type Snapshot struct {
	Role        registry.Role `json:"role"`
	Permissions []string      `json:"permissions"`
}

// Fetcher supplies permission snapshots and accepts updates. The concrete
// implementation is chosen at composition time: ServiceFetcher for in-process
// callers, HTTPFetcher for remote ones.
type Fetcher interface {
	FetchPermissions(ctx context.Context, userID int64) (Snapshot, error)
	UpdatePermissions(ctx context.Context, userID int64, codes []string) error
}

// ServiceFetcher resolves snapshots directly against the resolution service.
type ServiceFetcher struct {
	Service *authz.Service
}

// FetchPermissions resolves the snapshot in-process.
func (f ServiceFetcher) FetchPermissions(ctx context.Context, userID int64) (Snapshot, error) {
	perms, err := f.Service.GetUserPermissions(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Role: perms.Role, Permissions: perms.Permissions}, nil
}

// UpdatePermissions applies the replacement set in-process. The caller is
// both actor and target in this path.
func (f ServiceFetcher) UpdatePermissions(ctx context.Context, userID int64, codes []string) error {
	return f.Service.UpdateUserPermissions(ctx, userID, codes, &userID)
}

// HTTPFetcher talks to a remote authorization API.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
	// Header values attached to every request, typically the session cookie.
	Headers map[string]string
}

func (f HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// FetchPermissions retrieves the snapshot over HTTP.
func (f HTTPFetcher) FetchPermissions(ctx context.Context, userID int64) (Snapshot, error) {
	url := f.endpoint(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Snapshot{}, err
	}
	f.decorate(req)

	res, err := f.client().Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("guard: fetch permissions: unexpected status %d", res.StatusCode)
	}

	var payload struct {
		Role        string    `json:"role"`
		Permissions *[]string `json:"permissions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.Permissions == nil {
		return Snapshot{}, ErrMalformedPayload
	}
	return Snapshot{Role: registry.Role(payload.Role), Permissions: *payload.Permissions}, nil
}

// UpdatePermissions submits the replacement set over HTTP.
func (f HTTPFetcher) UpdatePermissions(ctx context.Context, userID int64, codes []string) error {
	if codes == nil {
		codes = []string{}
	}
	body, err := json.Marshal(map[string][]string{"permissions": codes})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, f.endpoint(userID), strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	f.decorate(req)

	res, err := f.client().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("guard: update permissions: unexpected status %d", res.StatusCode)
	}
	return nil
}

func (f HTTPFetcher) endpoint(userID int64) string {
	return strings.TrimRight(f.BaseURL, "/") + "/api/users/" + strconv.FormatInt(userID, 10) + "/permissions"
}

func (f HTTPFetcher) decorate(req *http.Request) {
	for k, v := range f.Headers {
		req.Header.Set(k, v)
	}
}
