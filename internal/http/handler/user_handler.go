package handler

import (
	"net/http"

	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/service"
)

type UserHandler struct {
	userSvc service.UserServiceInterface
}

func NewUserHandler(userSvc service.UserServiceInterface) *UserHandler {
	return &UserHandler{userSvc: userSvc}
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	u, err := h.userSvc.GetProfile(r.Context(), caller.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Profile retrieved.", map[string]any{"user": u.View()})
}

// UpdateProfile changes name, email or avatar. A new email must be verified again.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	var body service.ProfileUpdateInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.userSvc.UpdateProfile(r.Context(), caller.ID, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName:   "user.profile.update",
		ActorUserID: idString(caller.ID),
		TargetType:  "user",
		TargetID:    idString(caller.ID),
		Action:      "update",
		Outcome:     "success",
		Reason:      "self_service",
	})
	response.JSON(w, r, http.StatusOK, "Profile updated successfully.", map[string]any{"user": u.View()})
}
