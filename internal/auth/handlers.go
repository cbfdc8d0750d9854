package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// AuthHandlers handles authentication HTTP endpoints
type AuthHandlers struct {
	jwtService      *JWTService
	passwordService *PasswordService
	validator       *validator.Validate
	log             zerolog.Logger
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(jwtService *JWTService, passwordService *PasswordService, logger zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		jwtService:      jwtService,
		passwordService: passwordService,
		validator:       validator.New(),
		log:             logger,
	}
}

// JWTService returns the token service used by the handlers
func (h *AuthHandlers) JWTService() *JWTService {
	return h.jwtService
}

// IssueObserverToken handles observer login
// POST /api/auth/observer
func (h *AuthHandlers) IssueObserverToken(w http.ResponseWriter, r *http.Request) {
	var req ObserverLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.sendValidationError(w, err)
		return
	}

	if !h.passwordService.VerifyObserver(req.Password) {
		h.log.Warn().Str("observer", req.ObserverID).Str("remote", r.RemoteAddr).Msg("observer login rejected")
		h.sendError(w, http.StatusUnauthorized, "InvalidCredentials", "Invalid observer credentials")
		return
	}

	token, expiresAt, err := h.jwtService.GenerateAccessToken(req.ObserverID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue observer token")
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to issue token")
		return
	}

	h.log.Info().Str("observer", req.ObserverID).Time("expires_at", expiresAt).Msg("observer token issued")
	h.sendTokenResponse(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		ObserverID:  req.ObserverID,
		Role:        RoleObserver,
	})
}

// Helper methods

func (h *AuthHandlers) sendTokenResponse(w http.ResponseWriter, status int, response TokenResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func (h *AuthHandlers) sendError(w http.ResponseWriter, status int, code, message string) {
	WriteError(w, status, code, message)
}

func (h *AuthHandlers) sendValidationError(w http.ResponseWriter, err error) {
	var validationErrors []string
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", fe.Field(), getValidationMessage(fe)))
		}
	}

	h.sendError(w, http.StatusBadRequest, "ValidationError", strings.Join(validationErrors, "; "))
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Code:    code,
	})
}

func getValidationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "alphanumunicode":
		return "must contain only letters and digits"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
