package auth_test

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ampere-erp/ampere-erp/internal/auth"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

func chiRouter(h *auth.Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(shared.DefaultOwnershipGroup()))
		h.MountProtected(r)
	})
	return r
}
