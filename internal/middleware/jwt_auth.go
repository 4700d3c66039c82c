package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pulsewatch/pulsewatch/internal/api"
	"golang.org/x/crypto/bcrypt"
)

// UserClaims are the JWT claims issued at login
type UserClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTAuthConfig holds the settings for bearer-token authentication. The
// config is read-only after construction; there is no runtime toggle.
type JWTAuthConfig struct {
	// Enabled turns enforcement off entirely (local development)
	Enabled bool

	// AdminUsername and AdminPasswordHash are the single operator account.
	// The hash is bcrypt.
	AdminUsername     string
	AdminPasswordHash string

	// JWTSecret signs tokens (HS256); JWTExpiryHours bounds their lifetime
	JWTSecret      string
	JWTExpiryHours int

	// SkipPaths bypass authentication. A trailing "*" matches by prefix,
	// so "/webhook/*" covers the whole ingest surface.
	SkipPaths []string
}

// JWTAuthMiddleware guards the API surface with bearer tokens
type JWTAuthMiddleware struct {
	config   *JWTAuthConfig
	skipSet  map[string]bool
	prefixes []string
}

// ContextKey is a type for context keys
type ContextKey string

// UserContextKey is the context key for the authenticated username
const UserContextKey ContextKey = "user"

// NewJWTAuthMiddleware creates a JWT authentication middleware
func NewJWTAuthMiddleware(config *JWTAuthConfig) *JWTAuthMiddleware {
	m := &JWTAuthMiddleware{
		config:  config,
		skipSet: make(map[string]bool),
	}
	for _, path := range config.SkipPaths {
		if strings.HasSuffix(path, "*") {
			m.prefixes = append(m.prefixes, strings.TrimSuffix(path, "*"))
			continue
		}
		m.skipSet[path] = true
	}
	return m
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword checks whether the provided password matches the hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken issues a signed token for the user
func (m *JWTAuthMiddleware) GenerateToken(username string) (string, error) {
	claims := UserClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(m.config.JWTExpiryHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "pulsewatch",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.JWTSecret))
}

// ValidateToken parses and verifies a token, returning its claims
func (m *JWTAuthMiddleware) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// ValidateCredentials checks the operator username and password. The
// username comparison is constant time.
func (m *JWTAuthMiddleware) ValidateCredentials(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(m.config.AdminUsername)) != 1 {
		return false
	}
	return CheckPassword(password, m.config.AdminPasswordHash)
}

// Wrap wraps an http.Handler with bearer-token authentication
func (m *JWTAuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled || m.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := extractBearerToken(r)
		if tokenString == "" {
			m.unauthorized(w, "Missing authentication token")
			return
		}

		claims, err := m.ValidateToken(tokenString)
		if err != nil {
			log.Printf("JWTAuthMiddleware: Invalid token from %s: %v", r.RemoteAddr, err)
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// skip reports whether the path bypasses authentication
func (m *JWTAuthMiddleware) skip(path string) bool {
	if m.skipSet[path] {
		return true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func (m *JWTAuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer realm=\"API\"")
	api.RespondError(w, http.StatusUnauthorized, message)
}

// GetUserFromContext returns the authenticated username, or "" when the
// request skipped authentication.
func GetUserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(UserContextKey).(string); ok {
		return user
	}
	return ""
}
