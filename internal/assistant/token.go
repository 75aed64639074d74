package assistant

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/deepgram/coursechat/internal/config"
	"github.com/deepgram/coursechat/pkg/httpext"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const GrantTypeAnonymous = "anonymous"

var tokenLifetime = 15 * time.Minute

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type TokenRequest struct {
	GrantType string `json:"grant_type"`
}

type TokenClaims struct {
	jwt.RegisteredClaims
	GrantType string `json:"gty"`
}

// HandleToken issues a short lived anonymous access token for the chat socket.
func HandleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.GrantType != GrantTypeAnonymous {
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "unsupported_grant_type",
			ErrorDescription: "only anonymous tokens are issued",
		})
		return
	}

	token, err := IssueToken(tokenLifetime)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign access token")
		httpext.JsonError(w, "Error creating token", http.StatusInternalServerError)
		return
	}

	httpext.Json(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(tokenLifetime.Seconds()),
	})
}

// IssueToken signs an anonymous HS256 token with the configured secret.
func IssueToken(lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		GrantType: GrantTypeAnonymous,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(config.GetJWTSecret())
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// ExtractToken returns the bearer token of the request, if any.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ValidateToken checks signature, algorithm and expiry.
func ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return config.GetJWTSecret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
