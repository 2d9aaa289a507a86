package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

const (
	RoleOperator = "operator"
	RoleReviewer = "reviewer"
)

type Claims struct {
	Subject string
	Role    string
}

// Reviewer reports whether the caller may file corrections.
func (c Claims) Reviewer() bool {
	return c.Role == RoleReviewer || c.Role == RoleOperator
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// TokenAuthenticator accepts static bearer tokens. The dev token acts as an
// operator; reviewer tokens carry their reviewer's name as the subject.
type TokenAuthenticator struct {
	DevToken  string
	Reviewers map[string]string // token -> reviewer id
}

// NewAuthenticatorFromEnv reads TRIAGE_DEV_TOKEN and TRIAGE_REVIEWER_TOKENS,
// the latter as comma-separated reviewer:token pairs.
func NewAuthenticatorFromEnv(getenv func(string) string) *TokenAuthenticator {
	a := &TokenAuthenticator{
		DevToken:  getenv("TRIAGE_DEV_TOKEN"),
		Reviewers: map[string]string{},
	}
	for _, pair := range strings.Split(getenv("TRIAGE_REVIEWER_TOKENS"), ",") {
		name, token, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || token == "" {
			continue
		}
		a.Reviewers[token] = name
	}
	return a
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}

	if a.DevToken != "" && bearer == a.DevToken {
		return Claims{Subject: "dev", Role: RoleOperator}, nil
	}
	if name, ok := a.Reviewers[bearer]; ok {
		return Claims{Subject: name, Role: RoleReviewer}, nil
	}

	return Claims{}, ErrInvalidToken
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
