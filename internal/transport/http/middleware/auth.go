package httpmw

import (
	"context"
	"net/http"

	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/pkg/httputil"
	"github.com/cwrk-planet/collab-service/pkg/logger"
)

type Authenticator interface {
	Authenticate(r *http.Request) (domain.Principal, error)
}

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Auth applies the same credential policy as the WebSocket endpoint.
func Auth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Authenticate(r)
			if err != nil {
				logger.FromCtx(r.Context()).Info("api auth rejected", "err", err)
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFromCtx(ctx context.Context) domain.Principal {
	if p, ok := ctx.Value(ctxKeyPrincipal).(domain.Principal); ok {
		return p
	}
	return domain.Principal{}
}
