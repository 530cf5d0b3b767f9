package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type contextKey string

// AccountEmailKey is the context key holding the authenticated account's email.
const AccountEmailKey contextKey = "account_email"

// ErrInvalidToken is returned for tokens that do not authenticate anyone.
var ErrInvalidToken = errors.New("invalid token")

// Validator checks bearer tokens. A single static token authenticates as one account email.
// In test mode a token of the form "email:user@example.com" authenticates as that address.
type Validator struct {
	token        string
	accountEmail string
	testMode     bool
}

// NewValidator creates a Validator. An empty token rejects everything outside test mode.
func NewValidator(token, accountEmail string, testMode bool) *Validator {
	return &Validator{token: token, accountEmail: accountEmail, testMode: testMode}
}

// ValidateToken returns the account email the token authenticates as.
func (v *Validator) ValidateToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}

	if v.testMode {
		if email, ok := strings.CutPrefix(token, "email:"); ok {
			if email == "" {
				return "", ErrInvalidToken
			}
			return email, nil
		}
	}

	if v.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(v.token)) != 1 {
		return "", ErrInvalidToken
	}
	return v.accountEmail, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header. The scheme
// is case-insensitive.
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	return token, token != ""
}

// RequireAuth rejects requests without a valid bearer token and stores the account email in
// the request context.
func (v *Validator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			log.Debug().Str("path", r.URL.Path).Msg("auth: missing or malformed Authorization header")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		email, err := v.ValidateToken(token)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("auth: token rejected")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccountEmail(r.Context(), email)))
	})
}

// WithAccountEmail returns a context carrying the authenticated account email.
func WithAccountEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, AccountEmailKey, email)
}

// GetAccountEmailFromContext returns the account email from the context.
func GetAccountEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(AccountEmailKey).(string)
	return email, ok && email != ""
}
