package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediagallery/gallery-api/internal/http/middleware"
	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/service"
)

// AdminHandler serves the user administration routes. Callers are already
// checked by RequireAdmin.
type AdminHandler struct {
	userSvc service.UserServiceInterface
}

func NewAdminHandler(userSvc service.UserServiceInterface) *AdminHandler {
	return &AdminHandler{userSvc: userSvc}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.userSvc.ListUsers(r.Context(), service.UserListQuery{
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		Search:    queryString(r, "search"),
		Role:      queryString(r, "role"),
		IsActive:  queryBool(r, "isActive"),
		SortBy:    queryString(r, "sortBy"),
		SortOrder: queryString(r, "sortOrder"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Users retrieved.", page)
}

func (h *AdminHandler) SystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.userSvc.SystemStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "System statistics retrieved.", map[string]any{"stats": stats})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.userSvc.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "User retrieved.", map[string]any{"user": u.View()})
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body service.AdminUserUpdateInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.userSvc.UpdateUser(r.Context(), id, body)
	if err != nil {
		h.audit(r, "admin.user.update", id, "update", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	h.audit(r, "admin.user.update", id, "update", "success", "fields_updated")
	response.JSON(w, r, http.StatusOK, "User updated successfully.", map[string]any{"user": u.View()})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	if err := h.userSvc.DeactivateUser(r.Context(), caller.ID, id); err != nil {
		h.audit(r, "admin.user.deactivate", id, "deactivate", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	h.audit(r, "admin.user.deactivate", id, "deactivate", "success", "soft_delete")
	response.JSON(w, r, http.StatusOK, "User deactivated successfully.", nil)
}

func (h *AdminHandler) RestoreUser(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.userSvc.RestoreUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit(r, "admin.user.restore", id, "restore", "success", "reactivated")
	response.JSON(w, r, http.StatusOK, "User restored successfully.", map[string]any{"user": u.View()})
}

func (h *AdminHandler) audit(r *http.Request, event string, target uint, action, outcome, reason string) {
	observability.Audit(r, observability.AuditInput{
		EventName:   event,
		ActorUserID: actorID(r),
		TargetType:  "user",
		TargetID:    idString(target),
		Action:      action,
		Outcome:     outcome,
		Reason:      reason,
	})
}
