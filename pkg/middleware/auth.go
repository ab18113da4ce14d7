package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fkhayef/splitledger/pkg/response"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user ID
	UserIDKey ContextKey = "user_id"
)

// Claims are the JWT claims this service accepts. Tokens are issued elsewhere.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid token")

// JWTAuth validates HS256 bearer tokens signed with secret and puts the
// user_id claim in the request context. An empty issuer skips the issuer check.
func JWTAuth(secret, issuer string) func(http.Handler) http.Handler {
	key := []byte(secret)

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Authorization header required")
				return
			}

			// Extract token from "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			userID, err := validateToken(parser, key, parts[1])
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateToken(parser *jwt.Parser, key []byte, tokenString string) (int64, error) {
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil || !token.Valid {
		return 0, errInvalidToken
	}
	if claims.UserID <= 0 {
		return 0, errInvalidToken
	}
	return claims.UserID, nil
}

// TestUserMiddleware allows setting user ID via X-Test-User-ID header (DEV ONLY).
// Used when no JWT secret is configured.
func TestUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := int64(1)
		if header := r.Header.Get("X-Test-User-ID"); header != "" {
			parsed, err := strconv.ParseInt(header, 10, 64)
			if err != nil || parsed <= 0 {
				response.BadRequest(w, "Invalid X-Test-User-ID header")
				return
			}
			userID = parsed
		}
		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID extracts the user ID from the request context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}

// RequireUserID returns the authenticated user ID or writes 401 and returns false
func RequireUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok || userID <= 0 {
		response.Unauthorized(w, "Authentication required")
		return 0, false
	}
	return userID, true
}
