package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Call-cmd/zarmate/internal/storage"
)

const tokenTTL = 24 * time.Hour

// handleLogin authenticates a dashboard user by handle or processor ID and
// issues a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Identifier is required")
		return
	}

	user, err := s.store.UserByHandle(r.Context(), req.Identifier)
	if errors.Is(err, storage.ErrNotFound) {
		user, err = s.store.UserByID(r.Context(), req.Identifier)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found. Please sign up.")
			return
		}
		s.log.Error("login lookup", "identifier", req.Identifier, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		s.log.Error("issue token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful!",
		Token:   token,
		User:    LoginUser{ID: user.ID, Handle: user.Handle},
	})
}

func (s *Server) issueToken(user *storage.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"userId": user.ID,
		"handle": user.Handle,
		"jti":    uuid.NewString(),
		"iat":    now.Unix(),
		"exp":    now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
