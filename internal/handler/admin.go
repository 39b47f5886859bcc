package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/service"
)

// AdminHandler is the staff console for accounts, mounted under /admin/users
// behind auth.RequireStaff.
type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// HTTP: GET /admin/users?search=...
func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// HTTP: POST /admin/users → 201
func (h *AdminHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.AdminCreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.admin.CreateUser(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HTTP: GET /admin/users/{id}
func (h *AdminHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.admin.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: PATCH /admin/users/{id}
func (h *AdminHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var in service.AdminUpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.admin.UpdateUser(r.Context(), id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: DELETE /admin/users/{id} → 204
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.admin.DeleteUser(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
