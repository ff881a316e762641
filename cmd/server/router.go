package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/logging"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
)

func (s *server) routes(logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/auth/logout", s.handleLogout)
		r.Post("/auth/switch-organization", s.handleSwitchOrganization)
		r.Get("/members/me/permissions", s.handleMyPermissions)

		r.Get("/organizations", s.handleOrganizationsList)
		r.Post("/organizations", s.handleOrganizationsCreate)
		r.With(s.requirePermission(permissions.OrganizationsUpdate)).Put("/organizations/current", s.handleOrganizationsRename)

		r.Route("/members", func(r chi.Router) {
			r.With(s.requirePermission(permissions.MembersView)).Get("/", s.handleMembersList)
			r.With(s.requirePermission(permissions.MembersCreate)).Post("/", s.handleMembersCreate)
			r.With(s.requirePermission(permissions.MembersUpdate)).Put("/{userID}", s.handleMembersUpdate)
			r.With(s.requirePermission(permissions.MembersDelete)).Delete("/{userID}", s.handleMembersDelete)
		})

		r.Route("/clients", func(r chi.Router) {
			r.With(s.requirePermission(permissions.ClientsView)).Get("/", s.handleClientsList)
			r.With(s.requirePermission(permissions.ClientsCreate)).Post("/", s.handleClientsCreate)
			r.With(s.requirePermission(permissions.ClientsView)).Get("/{id}", s.handleClientsGet)
			r.With(s.requirePermission(permissions.ClientsUpdate)).Put("/{id}", s.handleClientsUpdate)
			r.With(s.requirePermission(permissions.ClientsDelete)).Delete("/{id}", s.handleClientsDelete)
		})

		r.Route("/products", func(r chi.Router) {
			r.With(s.requirePermission(permissions.ProductsView)).Get("/", s.handleProductsList)
			r.With(s.requirePermission(permissions.ProductsCreate)).Post("/", s.handleProductsCreate)
			r.With(s.requirePermission(permissions.ProductsView)).Get("/{id}", s.handleProductsGet)
			r.With(s.requirePermission(permissions.ProductsUpdate)).Put("/{id}", s.handleProductsUpdate)
			r.With(s.requirePermission(permissions.ProductsDelete)).Delete("/{id}", s.handleProductsDelete)
		})

		r.Route("/quotes", func(r chi.Router) {
			r.With(s.requirePermission(permissions.QuotesView)).Get("/", s.handleQuotesList)
			r.With(s.requirePermission(permissions.QuotesCreate)).Post("/", s.handleQuotesCreate)
			r.With(s.requirePermission(permissions.QuotesView)).Post("/totals", s.handleQuoteTotals)
			r.With(s.requirePermission(permissions.QuotesView)).Get("/{id}", s.handleQuotesGet)
			r.With(s.requirePermission(permissions.QuotesUpdate)).Put("/{id}", s.handleQuotesUpdate)
			r.With(s.requirePermission(permissions.QuotesDelete)).Delete("/{id}", s.handleQuotesDelete)
			r.Post("/{id}/status", s.handleQuoteStatus)
			r.With(s.requirePermission(permissions.QuotesView)).Get("/{id}/pdf", s.handleQuotePDF)
		})
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
