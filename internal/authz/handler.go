package authz

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atrium-hq/atrium/internal/platform/httpx"
	"github.com/atrium-hq/atrium/internal/shared"
)

// Handler exposes the authorization API: the permission catalog, per-user
// effective permissions, override mutations, and cache introspection.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		mw:       mw,
	}
}

// MountRoutes registers authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.myPermissions)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequirePermission(shared.PermPermissionsManage))
		r.Get("/permissions", h.listCatalog)
		r.Get("/authz/cache/stats", h.cacheStats)
		r.Put("/users/{userID}/permissions", h.updateUserPermissions)
		r.Post("/users/{userID}/permissions/{code}", h.addUserPermission)
		r.Delete("/users/{userID}/permissions/{code}", h.removeUserPermission)
	})

	r.Get("/users/{userID}/permissions", h.getUserPermissions)
}

type permissionDTO struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.Catalog()
	out := make([]permissionDTO, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, permissionDTO{Code: p.Code, Name: p.Name, Description: p.Description, Category: p.Category})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.mw.currentUserID(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	perms, err := h.service.GetUserPermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("resolve own permissions", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.mw.currentUserID(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	targetID, err := parseUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	// Reading someone else's permissions requires the manage capability;
	// reading your own does not.
	if targetID != actorID {
		allowed, err := h.service.HasPermission(r.Context(), actorID, shared.PermPermissionsManage)
		if err != nil || !allowed {
			if err != nil {
				h.logger.Error("authorize permission read", slog.Int64("actor_id", actorID), slog.Any("error", err))
			}
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
	}

	perms, err := h.service.GetUserPermissions(r.Context(), targetID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type updatePermissionsRequest struct {
	Permissions *[]string `json:"permissions" validate:"required"`
}

func (h *Handler) updateUserPermissions(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req updatePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed JSON body", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: permissions array is required", shared.ErrValidation))
		return
	}

	actorID := h.actorPointer(r)
	if err := h.service.UpdateUserPermissions(r.Context(), targetID, *req.Permissions, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) addUserPermission(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.service.AddUserPermission(r.Context(), targetID, code, h.actorPointer(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) removeUserPermission(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.service.RemoveUserPermission(r.Context(), targetID, code, h.actorPointer(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.CacheStats())
}

func (h *Handler) actorPointer(r *http.Request) *int64 {
	if actorID, ok := h.mw.currentUserID(r); ok {
		return &actorID
	}
	return nil
}

func parseUserID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid user id %q", shared.ErrValidation, raw)
	}
	return id, nil
}
