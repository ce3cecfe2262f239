package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cwrk-planet/collab-service/internal/domain"
)

type TokenVerifier interface {
	Verify(token string) (domain.Principal, error)
}

// no token: zero Principal if anonymous access is allowed
type Authenticator struct {
	verifier       TokenVerifier // nil: tokens are never accepted
	allowAnonymous bool
}

func NewAuthenticator(v TokenVerifier, allowAnonymous bool) *Authenticator {
	return &Authenticator{verifier: v, allowAnonymous: allowAnonymous}
}

func (a *Authenticator) Authenticate(r *http.Request) (domain.Principal, error) {
	token := TokenFromRequest(r)
	if token == "" {
		if a.allowAnonymous {
			return domain.Principal{}, nil
		}
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	if a.verifier == nil {
		return domain.Principal{}, domain.ErrUnauthenticated
	}

	p, err := a.verifier.Verify(token)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	return p, nil
}

// Bearer header, затем ?access_token= (браузер не ставит заголовки на ws upgrade)
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
