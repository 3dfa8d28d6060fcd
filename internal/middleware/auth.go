package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIKeyHeader carries the anonymous project key on every API request.
const APIKeyHeader = "apikey"

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// msg is always one of the fixed strings below.
	w.Write([]byte(`{"success":false,"error":"` + msg + `"}`)) //nolint:errcheck
}

// APIKey requires the anonymous key in the apikey header before delegating
// to next. Responds with 401 if the header is missing or wrong.
func APIKey(key string, next http.Handler) http.Handler {
	want := []byte(key)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(APIKeyHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			writeUnauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Claims is the payload of user access tokens. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type userKey struct{}

// WithUserID returns a copy of ctx carrying the caller's user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the authenticated caller, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// Identity resolves the caller from an optional "Authorization: Bearer
// <jwt>" header signed with secret (HS256). A missing header, or a bearer
// value equal to anonKey, leaves the request anonymous. Any other token that
// does not verify is rejected with 401.
func Identity(secret []byte, anonKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.HasPrefix(raw, "Bearer ") {
			writeUnauthorized(w, "unauthorized")
			return
		}
		token := strings.TrimPrefix(raw, "Bearer ")
		if anonKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(anonKey)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := ParseToken(secret, token)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
	})
}

var errNoSubject = errors.New("token has no subject")

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, errNoSubject
	}
	return claims, nil
}

// SignToken issues an HS256 token for userID valid for ttl from now.
func SignToken(secret []byte, userID string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dcims",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) == "" {
			writeUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RoleLookup resolves a user's role.
type RoleLookup interface {
	GetUserRole(ctx context.Context, userID string) (string, error)
}

// RequireRole admits authenticated callers whose role is one of allowed.
// Anonymous callers get 401, other roles 403.
func RequireRole(roles RoleLookup, allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())
		if userID == "" {
			writeUnauthorized(w, "authentication required")
			return
		}
		role, err := roles.GetUserRole(r.Context(), userID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !slices.Contains(allowed, role) {
			writeJSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
