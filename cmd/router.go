package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"DailyPulse/api"
)

func SetupRouter(h *api.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.HealthCheck)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/groups", h.ListGroups)
		r.Post("/groups", h.CreateGroup)
		r.Post("/groups/{groupID}/activation-link", h.IssueActivationLink)
		r.Get("/groups/{groupID}/windows", h.ListWindows)
		r.Get("/groups/{groupID}/windows/{date}/summary", h.GetSummary)
	})

	return r
}
