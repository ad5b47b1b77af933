package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/linemk/order-portal/internal/service"
)

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type UserListResponse struct {
	Success bool            `json:"success"`
	Users   []*UserResponse `json:"users"`
}

type UserMutationResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	User    *UserResponse `json:"user,omitempty"`
}

// ListUsersHandler обрабатывает GET /api/admin/users
func ListUsersHandler(log *slog.Logger, userService service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListUsersHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}

		users, err := userService.ListUsers(r.Context(), principal)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		out := make([]*UserResponse, 0, len(users))
		for _, u := range users {
			out = append(out, newUserResponse(u))
		}
		writeJSON(w, logger, http.StatusOK, UserListResponse{Success: true, Users: out})
	}
}

// GetUserHandler обрабатывает GET /api/admin/users/{id}
func GetUserHandler(log *slog.Logger, userService service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetUserHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := userIDParam(w, r, logger)
		if !ok {
			return
		}

		user, err := userService.GetUser(r.Context(), principal, id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, UserMutationResponse{Success: true, User: newUserResponse(user)})
	}
}

// UpdateUserRoleHandler обрабатывает PUT /api/admin/users/{id}/role
func UpdateUserRoleHandler(log *slog.Logger, userService service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateUserRoleHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := userIDParam(w, r, logger)
		if !ok {
			return
		}

		var req UpdateRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || validate.Struct(req) != nil {
			writeJSON(w, logger, http.StatusBadRequest, UserMutationResponse{Message: "invalid role"})
			return
		}

		user, err := userService.UpdateRole(r.Context(), principal, id, req.Role)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, UserMutationResponse{
			Success: true,
			Message: "User role updated successfully",
			User:    newUserResponse(user),
		})
	}
}

// DeleteUserHandler обрабатывает DELETE /api/admin/users/{id}
func DeleteUserHandler(log *slog.Logger, userService service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteUserHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := userIDParam(w, r, logger)
		if !ok {
			return
		}

		if err := userService.DeleteUser(r.Context(), principal, id); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, UserMutationResponse{Success: true, Message: "User deleted successfully"})
	}
}

func userIDParam(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		logger.Warn("invalid user id parameter", slog.String("id", chi.URLParam(r, "id")))
		writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "invalid id"})
		return 0, false
	}
	return id, true
}
