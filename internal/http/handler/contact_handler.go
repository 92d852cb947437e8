package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/http/middleware"
	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/service"
)

type ContactHandler struct {
	contactSvc service.ContactServiceInterface
}

func NewContactHandler(contactSvc service.ContactServiceInterface) *ContactHandler {
	return &ContactHandler{contactSvc: contactSvc}
}

// Submit accepts tickets from guests and signed-in users alike.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body service.ContactInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.contactSvc.Submit(r.Context(), currentUser(r), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit(r, "contact.submit", msg.ID, "create", "success")
	response.JSON(w, r, http.StatusCreated, "Message submitted successfully. We will get back to you soon!", map[string]any{"contact": msg})
}

func (h *ContactHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	page, err := h.contactSvc.ListMine(r.Context(), caller.ID, h.listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Messages retrieved.", page)
}

// GetMine serves both the owner and the admin lookup; the guard has already
// attached the ticket.
func (h *ContactHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	msg, ok := middleware.ResourceFromContext[*domain.ContactMessage](r.Context())
	if !ok {
		writeError(w, r, service.ErrContactNotFound)
		return
	}
	response.JSON(w, r, http.StatusOK, "Message retrieved.", map[string]any{"contact": msg})
}

func (h *ContactHandler) UpdateMine(w http.ResponseWriter, r *http.Request) {
	msg, ok := middleware.ResourceFromContext[*domain.ContactMessage](r.Context())
	if !ok {
		writeError(w, r, service.ErrContactNotFound)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.contactSvc.UpdateOwn(r.Context(), msg, body.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit(r, "contact.update", updated.ID, "update", "success")
	response.JSON(w, r, http.StatusOK, "Message updated successfully.", map[string]any{"contact": updated})
}

func (h *ContactHandler) DeleteMine(w http.ResponseWriter, r *http.Request) {
	msg, ok := middleware.ResourceFromContext[*domain.ContactMessage](r.Context())
	if !ok {
		writeError(w, r, service.ErrContactNotFound)
		return
	}
	if err := h.contactSvc.Delete(r.Context(), msg.ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.audit(r, "contact.delete", msg.ID, "delete", "success")
	response.JSON(w, r, http.StatusOK, "Message deleted successfully.", nil)
}

func (h *ContactHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	page, err := h.contactSvc.ListAll(r.Context(), h.listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Messages retrieved.", page)
}

func (h *ContactHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.contactSvc.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Message statistics retrieved.", map[string]any{"stats": stats})
}

func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.contactSvc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Message retrieved.", map[string]any{"contact": msg})
}

func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.contactSvc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.audit(r, "contact.admin.delete", id, "delete", "success")
	response.JSON(w, r, http.StatusOK, "Message deleted successfully.", nil)
}

func (h *ContactHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Message marked as read.", h.contactSvc.MarkRead)
}

func (h *ContactHandler) MarkReplied(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	h.transition(w, r, "Message marked as replied.", func(ctx context.Context, id uint) (*domain.ContactMessage, error) {
		return h.contactSvc.MarkReplied(ctx, caller.ID, id)
	})
}

func (h *ContactHandler) MarkResolved(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Message marked as resolved.", h.contactSvc.MarkResolved)
}

func (h *ContactHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Priority string `json:"priority"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	h.transition(w, r, "Message priority updated.", func(ctx context.Context, id uint) (*domain.ContactMessage, error) {
		return h.contactSvc.SetPriority(ctx, id, body.Priority)
	})
}

func (h *ContactHandler) AddNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	h.transition(w, r, "Admin notes added.", func(ctx context.Context, id uint) (*domain.ContactMessage, error) {
		return h.contactSvc.AddNotes(ctx, id, body.Notes)
	})
}

func (h *ContactHandler) transition(w http.ResponseWriter, r *http.Request, message string, apply func(ctx context.Context, id uint) (*domain.ContactMessage, error)) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := apply(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit(r, "contact.admin.update", id, "update", "success")
	response.JSON(w, r, http.StatusOK, message, map[string]any{"contact": msg})
}

func (h *ContactHandler) listQuery(r *http.Request) service.ContactListQuery {
	return service.ContactListQuery{
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		Status:    queryString(r, "status"),
		Priority:  queryString(r, "priority"),
		Search:    queryString(r, "search"),
		SortBy:    queryString(r, "sortBy"),
		SortOrder: queryString(r, "sortOrder"),
	}
}

func (h *ContactHandler) audit(r *http.Request, event string, target uint, action, outcome string) {
	observability.Audit(r, observability.AuditInput{
		EventName:   event,
		ActorUserID: actorID(r),
		TargetType:  "contact_message",
		TargetID:    idString(target),
		Action:      action,
		Outcome:     outcome,
		Reason:      event,
	})
}
