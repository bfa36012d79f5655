package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers exposes the auth HTTP surface.
type Handlers struct {
	service    *Service
	authorizer *Authorizer
}

// NewHandlers wires the auth handlers.
func NewHandlers(service *Service, authorizer *Authorizer) *Handlers {
	return &Handlers{service: service, authorizer: authorizer}
}

// Routes mounts the auth endpoints under the given router.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Post("/auth/refresh", h.refresh)
	r.With(h.authorizer.Middleware).Post("/auth/logout", h.logout)
}

type registerRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "phone and password are required")
		return
	}

	user, err := h.service.Register(r.Context(), req.Phone, req.Password, req.Name)
	if err != nil {
		log.Printf("Failed to register user: %v", err)
		writeError(w, http.StatusConflict, "could not register user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Phone     string  `json:"phone"`
	Password  string  `json:"password"`
	PushToken *string `json:"push_token,omitempty"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "phone and password are required")
		return
	}

	pair, err := h.service.Login(r.Context(), req.Phone, req.Password, req.PushToken)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized)
			return
		}
		log.Printf("Login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized)
		return
	}

	// The session id comes from the same token the middleware verified.
	claims, err := h.authorizer.issuer.Parse(bearerToken(r), KindAccess)
	if err != nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized)
		return
	}

	if err := h.service.Logout(r.Context(), user.ID, claims.SessionID); err != nil {
		log.Printf("Logout failed for user %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
