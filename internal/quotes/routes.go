package quotes

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Show)
		r.Patch("/{id}", h.Update)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Patch("/{id}/status", h.ChangeStatus)
		r.Post("/{id}/approve", h.transition(StatusApproved))
		r.Post("/{id}/reject", h.transition(StatusRejected))
		r.Post("/{id}/start", h.Start)
		r.Post("/{id}/cancel", h.transition(StatusCancelled))
		r.Post("/{id}/finish", h.transition(StatusCompleted))
		r.Get("/{id}/pdf", h.PDF)
		r.Post("/{id}/whatsapp", h.WhatsApp)
	})
}
