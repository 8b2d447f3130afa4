// Package api exposes the user profile REST surface that rides on the same
// listener as the relay's websocket endpoint.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/driftline/chat-relay/pkg/store"
)

type Handler struct {
	store store.UserStore
	log   *zap.Logger
}

// Register mounts the user routes on mux.
func Register(mux *http.ServeMux, st store.UserStore, logger *zap.Logger) {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	h := &Handler{
		store: st,
		log:   logger.With(zap.String("component", "api")),
	}

	mux.HandleFunc("GET /api/users", h.listUsers)
	mux.HandleFunc("GET /api/users/{id}", h.getUser)
	mux.HandleFunc("POST /api/users", h.createUser)
	mux.HandleFunc("DELETE /api/users/{id}", h.deleteUser)
}

type createUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	About       string `json:"about"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Users(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Error fetching users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid user id", err)
		return
	}

	user, err := h.store.User(r.Context(), id)
	if errors.Is(err, store.ErrUserNotFound) {
		h.fail(w, http.StatusNotFound, "User not found", nil)
		return
	}
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Error fetching user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Username == "" {
		h.fail(w, http.StatusBadRequest, "Username is required", nil)
		return
	}

	user, err := h.store.CreateUser(r.Context(), &store.User{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
		About:       req.About,
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		h.fail(w, http.StatusConflict, "Username already taken", nil)
		return
	}
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Error creating user", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid user id", err)
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, http.StatusInternalServerError, "Error deleting user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.log.Warn(message, zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
