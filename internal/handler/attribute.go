package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/service"
)

// AttributeHandler serves either /recipe/tags or /recipe/ingredients; one
// instance per kind.
type AttributeHandler struct {
	kind   model.AttributeKind
	attrs  *service.AttributeService
	logger *slog.Logger
}

func NewAttributeHandler(kind model.AttributeKind, attrs *service.AttributeService, logger *slog.Logger) *AttributeHandler {
	return &AttributeHandler{kind: kind, attrs: attrs, logger: logger}
}

type renameRequest struct {
	Name *string `json:"name"`
}

// HandleList returns the user's tags or ingredients by name, descending.
//
// HTTP: GET /recipe/tags?assigned_only=1
func (h *AttributeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	assignedOnly := false
	if raw := r.URL.Query().Get("assigned_only"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("assigned_only", "A valid integer is required."))
			return
		}
		assignedOnly = n != 0
	}

	attrs, err := h.attrs.List(r.Context(), h.kind, user.ID, assignedOnly)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

// HandlePatch renames an attribute. A body without "name" changes nothing.
//
// HTTP: PATCH /recipe/tags/{id}
func (h *AttributeHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// HandlePut renames an attribute; "name" is required.
//
// HTTP: PUT /recipe/tags/{id}
func (h *AttributeHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *AttributeHandler) update(w http.ResponseWriter, r *http.Request, full bool) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, string(h.kind))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var attr *model.Attribute
	switch {
	case req.Name != nil:
		attr, err = h.attrs.Rename(r.Context(), h.kind, user.ID, id, *req.Name)
	case full:
		err = apperror.ValidationFailed("name", "This field is required.")
	default:
		attr, err = h.attrs.Get(r.Context(), h.kind, user.ID, id)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, attr)
}

// HandleDelete removes an attribute and unlinks it from every recipe.
//
// HTTP: DELETE /recipe/tags/{id} → 204
func (h *AttributeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, string(h.kind))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.attrs.Delete(r.Context(), h.kind, user.ID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
