package handler

import (
	"net/http"
	"strconv"

	"identity-server/internal/domain"
	"identity-server/internal/service"
	"identity-server/pkg/response"

	"github.com/gorilla/mux"
)

type UserHandler struct {
	userService *service.UserService
	devMode     bool
}

func NewUserHandler(userService *service.UserService, devMode bool) *UserHandler {
	return &UserHandler{
		userService: userService,
		devMode:     devMode,
	}
}

// List serves GET /users?search=&page=&limit=. Unparseable numbers fall back
// to the defaults.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := domain.ListUsersQuery{
		Search: q.Get("search"),
		Page:   atoiOrZero(q.Get("page")),
		Limit:  atoiOrZero(q.Get("limit")),
	}

	page, err := h.userService.List(r.Context(), query)
	if err != nil {
		writeError(w, err, h.devMode)
		return
	}

	response.Success(w, page)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, h.devMode)
		return
	}

	response.Success(w, user)
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.userService.ChangePassword(r.Context(), mux.Vars(r)["id"], &req); err != nil {
		writeError(w, err, h.devMode)
		return
	}

	response.Message(w, "Password updated")
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err, h.devMode)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
