package auth

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// RequireUser rejects requests without a signed-in partner and stores the
// resolved actor in the request context.
func RequireUser(group shared.OwnershipGroup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				httpx.RespondError(w, fmt.Errorf("%w: sign in required", httpx.ErrUnauthorized))
				return
			}
			userID, err := strconv.ParseInt(sess.User(), 10, 64)
			if err != nil || userID <= 0 {
				httpx.RespondError(w, fmt.Errorf("%w: sign in required", httpx.ErrUnauthorized))
				return
			}
			if !group.Contains(userID) {
				httpx.RespondError(w, fmt.Errorf("%w: only partners of the firm have access", httpx.ErrForbidden))
				return
			}
			actor := shared.Actor{UserID: userID, IP: r.RemoteAddr, UserAgent: r.UserAgent()}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}
