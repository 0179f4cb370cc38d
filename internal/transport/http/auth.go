package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the caller identity. Tokens are minted by the identity
// provider; this service only verifies them.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct{ hmac []byte }

func NewAuthenticator(secret string) *Authenticator { return &Authenticator{hmac: []byte(secret)} }

// IssueToken signs an HS256 token for sub. Used by the CLI and tests.
func (a *Authenticator) IssueToken(sub string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
}

func (a *Authenticator) Parse(tokenStr string) (domain.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Actor{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Actor{}, errors.New("invalid token")
	}
	return domain.Actor{UserID: claims.Subject, Role: domain.Role(claims.Role)}, nil
}

// Middleware resolves the bearer token into an actor on the request context.
// Browsers cannot set headers on websocket upgrades, so access_token in the
// query string is accepted as well.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			respondJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing bearer token"})
			return
		}
		actor, err := a.Parse(token)
		if err != nil {
			respondJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "bad token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

type ctxKey string

const ctxKeyActor ctxKey = "actor"

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, actor)
}

func ActorFromContext(ctx context.Context) domain.Actor {
	if v, ok := ctx.Value(ctxKeyActor).(domain.Actor); ok {
		return v
	}
	return domain.Actor{}
}
