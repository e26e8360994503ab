package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/novaangola/apiserver/internal/auth"
	"github.com/novaangola/apiserver/internal/services"
	"github.com/novaangola/apiserver/types"
)

const (
	msgLoginFieldsRequired  = "Telefone e password são obrigatórios."
	msgSignupFieldsRequired = "Todos os campos são obrigatórios."
	msgInvalidCredentials   = "Credenciais inválidas."
	msgAccountExists        = "Já existe uma conta com este NIF ou telefone."
	msgAccountCreated       = "Conta criada com sucesso."
	msgPasswordTooLong      = "A password não pode ter mais de 72 bytes."
)

// IdentityResolver turns a bearer token into a caller identity.
type IdentityResolver interface {
	Resolve(token string) (auth.Identity, bool)
}

// TokenIssuer signs tokens for authenticated users.
type TokenIssuer interface {
	IdentityResolver
	Issue(user types.User) (string, error)
}

// AuthHandler provides the login and signup endpoints.
type AuthHandler struct {
	userService *services.UserService
	tokens      TokenIssuer
	logger      *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, tokens TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		logger:      logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, tokens TokenIssuer, logger *slog.Logger) {
	handler := NewAuthHandler(userService, tokens, logger)

	r.Post("/login", handler.Login)
	r.Post("/cadastro", handler.Register)
}

// requireIdentity writes a 401 with message when the request has no valid
// bearer token.
func requireIdentity(w http.ResponseWriter, r *http.Request, resolver IdentityResolver, message string) (auth.Identity, bool) {
	identity, ok := resolveIdentity(resolver, r)
	if !ok {
		writeError(w, http.StatusUnauthorized, message)
		return auth.Identity{}, false
	}
	return identity, true
}

// resolveIdentity never fails the request: a missing, malformed or expired
// token means an anonymous caller.
func resolveIdentity(resolver IdentityResolver, r *http.Request) (auth.Identity, bool) {
	token, err := bearerToken(r)
	if err != nil {
		return auth.Identity{}, false
	}
	return resolver.Resolve(token)
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	err := decodeJSON(w, r, &req)
	req.Telefone = req.Telefone.trim()
	if err != nil || validate.Struct(req) != nil {
		writeError(w, http.StatusBadRequest, msgLoginFieldsRequired)
		return
	}

	user, err := h.userService.Authenticate(r.Context(), string(req.Telefone), string(req.Password))
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		h.logger.ErrorContext(r.Context(), "login failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Nome: user.Nome, ID: user.ID})
}

// Register creates a new account. The client logs in separately afterwards.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	err := decodeJSON(w, r, &req)
	req.Nome, req.Email, req.Telefone = req.Nome.trim(), req.Email.trim(), req.Telefone.trim()
	if err != nil || validate.Struct(req) != nil {
		writeError(w, http.StatusBadRequest, msgSignupFieldsRequired)
		return
	}

	user, err := h.userService.Register(r.Context(), services.RegisterInput{
		Nome:     string(req.Nome),
		Email:    string(req.Email),
		Telefone: string(req.Telefone),
		Password: string(req.Password),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAccountExists):
			writeError(w, http.StatusConflict, msgAccountExists)
			return
		case errors.Is(err, services.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, msgPasswordTooLong)
			return
		}
		h.logger.ErrorContext(r.Context(), "signup failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: msgAccountCreated, ID: user.ID})
}

// LoginRequest is the /login body. Telefone may arrive as a number.
type LoginRequest struct {
	Telefone text `json:"telefone" validate:"required"`
	Password text `json:"password" validate:"required"`
}

// RegisterRequest is the /cadastro body. Email carries the NIF.
type RegisterRequest struct {
	Nome     text `json:"nome" validate:"required"`
	Email    text `json:"email" validate:"required"`
	Telefone text `json:"telefone" validate:"required"`
	Password text `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	Nome  string `json:"nome"`
	ID    string `json:"id"`
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
