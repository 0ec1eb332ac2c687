package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
)

// Roles carried in the "role" claim.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// AuthMiddleware validates JWT tokens and extracts user ID and role. Websocket clients that
// cannot set headers may pass the token as the access_token query parameter.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "missing or invalid authorization header")
				return
			}
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenInvalidClaims
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeUnauthorized(w, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeUnauthorized(w, "invalid token claims")
				return
			}

			userID, err := extractUserID(claims)
			if err != nil {
				writeUnauthorized(w, "user id not found")
				return
			}
			role, _ := claims["role"].(string)
			if role == "" {
				role = RoleCustomer
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, roleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := RoleFromContext(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"Forbidden","message":"insufficient role"}`))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := strings.TrimSpace(r.URL.Query().Get("access_token"))
		return token, token != ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func extractUserID(claims jwt.MapClaims) (string, error) {
	switch v := claims["user_id"].(type) {
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	case string:
		if v == "" {
			return "", fmt.Errorf("user_id is empty")
		}
		return v, nil
	default:
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			return sub, nil
		}
		return "", fmt.Errorf("user_id not present")
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized","message":` + strconv.Quote(message) + `}`))
}

// UserIDFromContext retrieves userID from request context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// RoleFromContext retrieves the caller role from request context.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleKey).(string)
	return role, ok
}

// IsOperator reports whether the caller is staff or admin.
func IsOperator(ctx context.Context) bool {
	role, _ := RoleFromContext(ctx)
	return role == RoleStaff || role == RoleAdmin
}

// WithPrincipal returns a context carrying userID and role, as AuthMiddleware would set them.
func WithPrincipal(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}
