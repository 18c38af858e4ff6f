package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/helio-ops/solsyncbackend/models"
	"github.com/helio-ops/solsyncbackend/repository"
)

// UserHandler serves field technician accounts. Authentication policy is out
// of scope here; uploader ids on images reference these records.
type UserHandler struct {
	Users repository.UserRepositoryInterface
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_fields", "username and password are required")
		return
	}
	if existing, err := h.Users.GetByUsername(req.Username); err == nil && existing != nil {
		WriteAPIError(w, http.StatusConflict, "username_taken", "username already exists")
		return
	}

	user := models.User{Username: req.Username, IsAdmin: req.IsAdmin}
	if err := user.SetPassword(req.Password); err != nil {
		log.Printf("handlers: failed to hash password: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "create_failed", "failed to create user")
		return
	}
	if err := h.Users.Create(&user); err != nil {
		log.Printf("handlers: failed to create user: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "create_failed", "failed to create user")
		return
	}
	WriteJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.ListAll()
	if err != nil {
		log.Printf("handlers: failed to list users: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "failed to list users")
		return
	}
	WriteJSON(w, http.StatusOK, users)
}
