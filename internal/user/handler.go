package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/splitledger/pkg/middleware"
	"github.com/fkhayef/splitledger/pkg/response"
	"github.com/fkhayef/splitledger/pkg/validation"
)

// Handler serves the member directory: sign-up, lookup and the caller's own
// profile. A user can only rename themselves.
type Handler struct {
	service *Service
}

// NewHandler creates a new user handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for user endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/me", h.Me)
	r.Patch("/me", h.Rename)
	r.Get("/{id}", h.GetByID)

	return r
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrEmailAlreadyInUse):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w, fallback)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	if err := validation.Struct(dst); err != nil {
		response.ValidationFailed(w, err)
		return false
	}
	return true
}

// Create handles POST /users
// @Summary      Register a member
// @Description  Register a user who can then be added to groups. Emails are unique and stored lower-cased.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body CreateUserRequest true "User creation request"
// @Success      201 {object} response.APIResponse{data=UserResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /users [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decode(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, err, "Failed to register user")
		return
	}

	response.JSON(w, http.StatusCreated, created.ToResponse())
}

// Me handles GET /users/me
// @Summary      Current user
// @Description  Get the profile of the authenticated caller
// @Tags         users
// @Produce      json
// @Success      200 {object} response.APIResponse{data=UserResponse}
// @Failure      401 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.RequireUserID(w, r)
	if !ok {
		return
	}

	me, err := h.service.GetByID(r.Context(), callerID)
	if err != nil {
		writeError(w, err, "Failed to load profile")
		return
	}

	response.JSON(w, http.StatusOK, me.ToResponse())
}

// GetByID handles GET /users/{id}
// @Summary      Look up a member
// @Description  Get a single user, e.g. to resolve a debtor or creditor id
// @Tags         users
// @Produce      json
// @Param        id path int true "User ID"
// @Success      200 {object} response.APIResponse{data=UserResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	found, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to get user")
		return
	}

	response.JSON(w, http.StatusOK, found.ToResponse())
}

// List handles GET /users
// @Summary      List members
// @Description  Page through registered users in id order
// @Tags         users
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]UserResponse}
// @Router       /users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	users, total, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		writeError(w, err, "Failed to list users")
		return
	}

	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse())
	}

	response.JSONWithMeta(w, http.StatusOK, out, response.NewMeta(page, perPage, total))
}

// Rename handles PATCH /users/me
// @Summary      Rename yourself
// @Description  Change the caller's username. Nobody can rename another user.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body UpdateUserRequest true "New username"
// @Success      200 {object} response.APIResponse{data=UserResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/me [patch]
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.RequireUserID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !decode(w, r, &req) {
		return
	}

	renamed, err := h.service.Rename(r.Context(), callerID, &req)
	if err != nil {
		writeError(w, err, "Failed to rename user")
		return
	}

	response.JSON(w, http.StatusOK, renamed.ToResponse())
}
