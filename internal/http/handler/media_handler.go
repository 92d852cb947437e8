package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/http/middleware"
	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/service"
)

const multipartMemory = 8 << 20

var mediaFileFields = []string{"images", "image"}

type MediaHandler struct {
	mediaSvc       service.MediaServiceInterface
	maxUploadBytes int64
}

func NewMediaHandler(mediaSvc service.MediaServiceInterface, maxUploadBytes int64) *MediaHandler {
	return &MediaHandler{mediaSvc: mediaSvc, maxUploadBytes: maxUploadBytes}
}

func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.mediaSvc.List(r.Context(), currentUser(r), h.listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Media retrieved.", page)
}

func (h *MediaHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := h.listQuery(r)
	if term := queryString(r, "q"); term != "" {
		q.Search = term
	}
	page, err := h.mediaSvc.Search(r.Context(), currentUser(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Search results retrieved.", page)
}

func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.mediaSvc.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Media retrieved.", map[string]any{"media": view})
}

func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, service.NewValidationError("Invalid multipart upload."))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var headers []*multipart.FileHeader
	for _, field := range mediaFileFields {
		headers = append(headers, r.MultipartForm.File[field]...)
	}
	for _, fh := range headers {
		if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
			writeError(w, r, service.NewValidationError("File size too large. Maximum size is %s.", humanSize(h.maxUploadBytes)))
			return
		}
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, fmt.Errorf("open upload part: %w", err))
			return
		}
		defer f.Close()
		files = append(files, service.UploadFile{Name: fh.Filename, Size: fh.Size, Content: f})
	}

	result, err := h.mediaSvc.Upload(r.Context(), caller, formMediaInput(r.MultipartForm), files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName:   "media.upload",
		ActorUserID: idString(caller.ID),
		TargetType:  "media",
		TargetID:    strconv.Itoa(len(result.Media)),
		Action:      "create",
		Outcome:     "success",
		Reason:      "upload",
	})
	response.JSON(w, r, http.StatusCreated, fmt.Sprintf("Successfully uploaded %d file(s).", len(result.Media)), result)
}

func (h *MediaHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	page, err := h.mediaSvc.ListMine(r.Context(), caller, h.listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Media retrieved.", page)
}

func (h *MediaHandler) StatsMine(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	stats, err := h.mediaSvc.StatsForUser(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Media statistics retrieved.", map[string]any{"stats": stats})
}

// ListByOwner serves another account's public gallery.
func (h *MediaHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.ParseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.mediaSvc.ListByOwner(r.Context(), currentUser(r), ownerID, h.listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Media retrieved.", page)
}

// UserStats serves /users/stats for the caller and /users/stats/{userId}
// for a named account.
func (h *MediaHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	target := caller.ID
	if raw := chi.URLParam(r, "userId"); raw != "" {
		id, err := middleware.ParseID(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		target = id
	}
	report, err := h.mediaSvc.UserStats(r.Context(), caller, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "User statistics retrieved.", report)
}

// Update and Delete run behind RequireOwnerOrAdmin, which attaches the item.
func (h *MediaHandler) Update(w http.ResponseWriter, r *http.Request) {
	item, ok := middleware.ResourceFromContext[*domain.Media](r.Context())
	if !ok {
		writeError(w, r, service.ErrMediaNotFound)
		return
	}
	var body service.MediaInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.mediaSvc.Update(r.Context(), currentUser(r), item, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.audit(r, "media.update", item.ID, "update")
	response.JSON(w, r, http.StatusOK, "Media updated successfully.", map[string]any{"media": view})
}

func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, ok := middleware.ResourceFromContext[*domain.Media](r.Context())
	if !ok {
		writeError(w, r, service.ErrMediaNotFound)
		return
	}
	if err := h.mediaSvc.Delete(r.Context(), item); err != nil {
		writeError(w, r, err)
		return
	}
	h.audit(r, "media.delete", item.ID, "delete")
	response.JSON(w, r, http.StatusOK, "Media deleted successfully.", nil)
}

func (h *MediaHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r)
	if caller == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.mediaSvc.ToggleLike(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Like toggled successfully.", result)
}

func (h *MediaHandler) listQuery(r *http.Request) service.MediaListQuery {
	return service.MediaListQuery{
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		Search:    queryString(r, "search"),
		Category:  queryString(r, "category"),
		Tags:      queryString(r, "tags"),
		SortBy:    queryString(r, "sortBy"),
		SortOrder: queryString(r, "sortOrder"),
	}
}

func (h *MediaHandler) audit(r *http.Request, event string, target uint, action string) {
	observability.Audit(r, observability.AuditInput{
		EventName:   event,
		ActorUserID: actorID(r),
		TargetType:  "media",
		TargetID:    idString(target),
		Action:      action,
		Outcome:     "success",
		Reason:      event,
	})
}

// formMediaInput reads the optional metadata fields sent alongside the files.
func formMediaInput(form *multipart.Form) service.MediaInput {
	var in service.MediaInput
	field := func(name string) *string {
		values, ok := form.Value[name]
		if !ok || len(values) == 0 {
			return nil
		}
		v := values[0]
		return &v
	}
	in.Title = field("title")
	in.Description = field("description")
	in.Tags = field("tags")
	in.Category = field("category")
	if raw := field("isPublic"); raw != nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(*raw)); err == nil {
			in.IsPublic = &v
		}
	}
	return in
}

func humanSize(n int64) string {
	const mb = 1 << 20
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
